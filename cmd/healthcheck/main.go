// Command healthcheck probes a running server's /healthz endpoint. Exit
// code 0 means healthy; intended for container health checks.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:5613", "server base URL")
	timeout := flag.Duration("timeout", 3*time.Second, "probe timeout")
	flag.Parse()

	status, body, err := fasthttp.GetTimeout(nil, *addr+"/healthz", *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health probe failed: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d body %s\n", status, body)
		os.Exit(1)
	}
	fmt.Println("ok")
}
