// Package statsview runs a local HTTP server offering runtime statistics
// charts and the standard pprof handlers.
//
// After launch, charts are viewable at
//
//	<addr>/debug/statsview
//
// and pprof at
//
//	<addr>/debug/pprof/
package statsview

import (
	"context"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/sirupsen/logrus"
)

// DefaultAddress is used when Launch is given an empty address.
const DefaultAddress = "localhost:18091"

const url = "/debug/statsview"

// Launch starts the stats server in a new goroutine and stops it when ctx
// is done. It returns the URL of the charts page.
func Launch(ctx context.Context, addr string, log *logrus.Entry) string {
	if addr == "" {
		addr = DefaultAddress
	}
	viewer.SetConfiguration(viewer.WithAddr(addr))
	mgr := statsview.New()

	go func() {
		// Start blocks until the server is stopped
		mgr.Start()
	}()
	go func() {
		<-ctx.Done()
		mgr.Stop()
	}()

	page := "http://" + addr + url
	log.Infof("Stats server available at %s", page)
	return page
}
