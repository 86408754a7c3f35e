package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/Simonization/webservTester/internal/model"
)

// ElasticSearchHook archives finished reports in an elasticsearch index so
// that runs can be searched and compared over time.
type ElasticSearchHook struct {
	client *elasticsearch.Client
	index  string

	log *slog.Logger
}

func NewElasticSearchHook(addresses []string, index string, log *slog.Logger) (*ElasticSearchHook, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return &ElasticSearchHook{
		client: client,
		index:  index,
		log:    log,
	}, nil
}

func (h *ElasticSearchHook) Name() string {
	return "elastic-search"
}

func (h *ElasticSearchHook) Init() error {
	return nil
}

func (h *ElasticSearchHook) RunFinishedAsync(r model.Report, callback func(context map[string]any)) {
	body, err := json.Marshal(r)
	if err != nil {
		h.log.Error("unable to marshal report", "error", err)
		return
	}

	es := h.client

	res, err := es.Index(
		h.index,
		bytes.NewReader(body),
		es.Index.WithContext(context.Background()),
		es.Index.WithDocumentID(strconv.Itoa(r.ID)),
	)
	if err != nil {
		h.log.Error("unable to index report", "error", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		h.log.Error("indexing report failed", "status", res.Status(), "runID", r.ID)
		return
	}

	callback(map[string]any{"elastic-search.documentID": strconv.Itoa(r.ID)})
}
