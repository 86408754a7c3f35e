package fixture

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderSingleRoute(t *testing.T) {
	fx := SingleRoute("127.0.0.1", 8888, "webserv", "./www/")

	doc, err := Render(fx)
	require.NoError(t, err)

	assert.Contains(t, doc, "host 127.0.0.1;")
	assert.Contains(t, doc, "listen 8888;")
	assert.Contains(t, doc, "server_name webserv;")
	assert.Contains(t, doc, "root ./www/;")
	assert.Contains(t, doc, "location / {")
	assert.Contains(t, doc, "index index.html;")
	assert.Contains(t, doc, "allowed_methods GET;")
	assert.NotContains(t, doc, "client_max_body_size")
}

func TestRenderFull(t *testing.T) {
	fx := Full("127.0.0.1", 8888, "./www/", 50000)

	doc, err := Render(fx)
	require.NoError(t, err)

	assert.Contains(t, doc, "client_max_body_size 50000;")
	assert.Contains(t, doc, "allowed_methods GET POST DELETE;")
	assert.Contains(t, doc, "upload_dir uploads;")
	assert.Contains(t, doc, "autoindex on;")
	assert.Contains(t, doc, "cgi_extension .py;")
}

func TestRenderMultiServer(t *testing.T) {
	fx := MultiServer("127.0.0.1", 8888, 8889, "./www/")

	doc, err := Render(fx)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(doc, "server {"))
	assert.Contains(t, doc, "listen 8888;")
	assert.Contains(t, doc, "listen 8889;")
	assert.Contains(t, doc, "index dashboard.html;")
}

func TestDuplicateBuilders(t *testing.T) {
	assert.Equal(t, []int{8888, 8888}, DuplicateListen("127.0.0.1", 8888, "./www/").Ports())
	assert.Equal(t, []int{8888, 8888}, DuplicatePorts("127.0.0.1", 8888, "./www/").Ports())

	names := DuplicateNames("127.0.0.1", 8888, 8889, "./www/")
	assert.Equal(t, names.Servers[0].Name, names.Servers[1].Name)

	locs := DuplicateLocations("127.0.0.1", 8888, "./www/")
	assert.Equal(t, locs.Servers[0].Locations[0].Path, locs.Servers[0].Locations[1].Path)
}

func TestCreateAndRelease(t *testing.T) {
	g := NewGenerator(testLogger())

	f, err := g.Create(SingleRoute("127.0.0.1", 8888, "webserv", "./www/"))
	require.NoError(t, err)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listen 8888;")

	f.Release()

	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))

	// releasing twice must not panic or fail
	f.Release()
}
