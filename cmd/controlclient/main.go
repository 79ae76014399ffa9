// Command controlclient drives a running interview agent through its control
// API and checks its gRPC health.
//
//	controlclient status
//	controlclient submit
//	controlclient type "my answer"
//	controlclient record on|off
//	controlclient key F12 [-ctrl] [-shift]
//	controlclient retry
//	controlclient watch [prefix]
//	controlclient health
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const sessionService = "ascend.interview.Session"

func main() {
	addr := flag.String("addr", "http://localhost:8090", "control API base URL")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC health address")
	ctrl := flag.Bool("ctrl", false, "key event: ctrl held")
	shift := flag.Bool("shift", false, "key event: shift held")
	alt := flag.Bool("alt", false, "key event: alt held")
	meta := flag.Bool("meta", false, "key event: meta held")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	base := strings.TrimRight(*addr, "/")
	var err error
	switch args[0] {
	case "status":
		err = call(http.MethodGet, base+"/v1/session", nil)
	case "submit":
		err = call(http.MethodPost, base+"/v1/session/submit", nil)
	case "type":
		if len(args) < 2 {
			log.Fatal("type needs the answer text")
		}
		err = call(http.MethodPut, base+"/v1/session/transcript", map[string]string{"text": strings.Join(args[1:], " ")})
	case "record":
		if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
			log.Fatal("record needs on or off")
		}
		err = call(http.MethodPost, base+"/v1/session/recording", map[string]bool{"on": args[1] == "on"})
	case "key":
		if len(args) < 2 {
			log.Fatal("key needs a key name")
		}
		err = call(http.MethodPost, base+"/v1/session/input", map[string]any{
			"type":  "keydown",
			"key":   args[1],
			"ctrl":  *ctrl,
			"shift": *shift,
			"alt":   *alt,
			"meta":  *meta,
		})
	case "retry":
		err = call(http.MethodPost, base+"/v1/session/retry", nil)
	case "watch":
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		err = watch(base, prefix)
	case "health":
		err = health(*grpcAddr)
	default:
		log.Fatalf("unknown command %q", args[0])
	}
	if err != nil {
		log.Fatal(err)
	}
}

func call(method, url string, body any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		out = pretty.Bytes()
	}
	fmt.Printf("%s\n%s\n", resp.Status, strings.TrimSpace(string(out)))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s failed", method, url)
	}
	return nil
}

func watch(base, prefix string) error {
	url := "ws" + strings.TrimPrefix(base, "http") + "/v1/session/events"
	if prefix != "" {
		url += "?prefix=" + prefix
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	log.Printf("Watching %s", url)

	for {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fmt.Printf("%-32s %s\n", ev.Type, ev.Data)
	}
}

func health(addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := grpc_health_v1.NewHealthClient(conn)
	for _, svc := range []string{"", sessionService} {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: svc})
		if err != nil {
			return fmt.Errorf("check %q: %w", svc, err)
		}
		name := svc
		if name == "" {
			name = "(server)"
		}
		fmt.Printf("%-28s %s\n", name, resp.Status)
	}
	return nil
}
