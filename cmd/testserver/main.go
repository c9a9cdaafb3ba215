// Command testserver runs the fake external services an exercise talks to.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port       Port to listen on (default: 8080)
//	-host       Host to bind to (default: localhost)
//	-user       Team position user (default: tabletop)
//	-key        Team position key (default: secret)
//	-bot-token  Telegram bot token (default: 123:fake)
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tabletop/testserver"
)

func main() {
	opts := testserver.DefaultOptions
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	flag.StringVar(&opts.User, "user", opts.User, "team position user")
	flag.StringVar(&opts.Key, "key", opts.Key, "team position key")
	flag.StringVar(&opts.BotToken, "bot-token", opts.BotToken, "telegram bot token")
	flag.Parse()

	server := testserver.NewServer(opts)
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Tabletop Test Server")
	fmt.Println("====================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health                                   - Health check")
	fmt.Println("  GET  /servlet/is/rest/login                    - Team position login")
	fmt.Println("  POST /servlet/is/rest/entry/4554/TeamPosition  - Team position update")
	fmt.Printf("  POST %s/Datastreams({id})/Observations - Create observation\n", testserver.SensorThingsRoot)
	fmt.Printf("  POST %s/Things({id})/Locations         - Create location\n", testserver.SensorThingsRoot)
	fmt.Println("  POST /bot{token}/sendMessage                   - Telegram message")
	fmt.Println("  GET  /status/{code}                            - Return specific status code")
	fmt.Println("  GET  /delay/{ms}                               - Delay response by milliseconds")
	fmt.Println("  POST /echo                                     - Echo request body")
	fmt.Println()
	fmt.Println("Playbook properties:")
	fmt.Printf("  frostServerUrl:    http://%s%s\n", addr, testserver.SensorThingsRoot)
	fmt.Printf("  teamPositionUrl:   http://%s\n", addr)
	fmt.Printf("  telegramApiUrl:    http://%s\n", addr)
	fmt.Printf("  telegramAuthToken: %s\n", opts.BotToken)
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		os.Exit(0)
	}()

	log.Fatal(http.ListenAndServe(addr, server.Handler()))
}
