package fixture

import "github.com/Simonization/webservTester/internal/model"

// Builders for the fixture topologies the harness needs. The invalid ones
// generate successfully on purpose: the SUT is expected to reject them at
// startup.

func defaultLocation() model.Location {
	return model.Location{
		Path:    "/",
		Index:   "index.html",
		Methods: []string{"GET"},
	}
}

// SingleRoute is a minimal valid fixture: one server, one GET-only route.
func SingleRoute(host string, port int, name, root string) model.Fixture {
	return model.Fixture{Servers: []model.ServerBlock{{
		Host:      host,
		Listen:    []int{port},
		Name:      name,
		Root:      root,
		Locations: []model.Location{defaultLocation()},
	}}}
}

// Full is the fixture used by most probe sections: static routes, an
// upload/methods route, a CGI route and a cookie route, with a body limit.
func Full(host string, port int, root string, maxBodySize int) model.Fixture {
	return model.Fixture{Servers: []model.ServerBlock{{
		Host:        host,
		Listen:      []int{port},
		Name:        "webserv",
		Root:        root,
		MaxBodySize: maxBodySize,
		Locations: []model.Location{
			defaultLocation(),
			{Path: "/dashboard", Index: "dashboard.html", Methods: []string{"GET"}},
			{Path: "/methods", Methods: []string{"GET", "POST", "DELETE"}, UploadDir: "uploads"},
			{Path: "/uploads", Methods: []string{"GET", "DELETE"}, Autoindex: true},
			{Path: "/cgi-bin", Methods: []string{"GET", "POST"}, Autoindex: true, CGIExt: ".py"},
			{Path: "/register", Methods: []string{"GET", "POST"}},
		},
	}}}
}

// MultiServer declares two servers on distinct ports with different index
// files, to verify that both endpoints are served.
func MultiServer(host string, port1, port2 int, root string) model.Fixture {
	return model.Fixture{Servers: []model.ServerBlock{
		{
			Host:      host,
			Listen:    []int{port1},
			Name:      "server1",
			Root:      root,
			Locations: []model.Location{defaultLocation()},
		},
		{
			Host:   host,
			Listen: []int{port2},
			Name:   "server2",
			Root:   root,
			Locations: []model.Location{{
				Path:    "/",
				Index:   "dashboard.html",
				Methods: []string{"GET"},
			}},
		},
	}}
}

// DuplicateListen repeats the same listen port inside one server block.
func DuplicateListen(host string, port int, root string) model.Fixture {
	fx := SingleRoute(host, port, "test", root)
	fx.Servers[0].Listen = []int{port, port}
	return fx
}

// DuplicatePorts claims the same listen port in two server blocks.
func DuplicatePorts(host string, port int, root string) model.Fixture {
	fx := MultiServer(host, port, port, root)
	return fx
}

// DuplicateNames declares two servers sharing one server_name.
func DuplicateNames(host string, port1, port2 int, root string) model.Fixture {
	fx := MultiServer(host, port1, port2, root)
	fx.Servers[0].Name = "myserver"
	fx.Servers[1].Name = "myserver"
	return fx
}

// DuplicateLocations declares the same location path twice in one server.
func DuplicateLocations(host string, port int, root string) model.Fixture {
	return model.Fixture{Servers: []model.ServerBlock{{
		Host:   host,
		Listen: []int{port},
		Name:   "server1",
		Root:   root,
		Locations: []model.Location{
			{Path: "/test", Index: "index.html", Methods: []string{"GET"}},
			{Path: "/test", Index: "index.html", Methods: []string{"POST"}},
		},
	}}}
}
