//go:build wasip1

// Mock interpreter for testing session logic without a real Ruby build.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go
//
// Requests whose code starts with "raise " answer with an ERROR frame,
// "exit" terminates the guest, "spin" never answers. Everything else is
// echoed back as the value.
package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

func frame(kind, payload string) {
	fmt.Fprintf(os.Stderr, "\x00ANCHOR_%s:%s\x00", kind, base64.StdEncoding.EncodeToString([]byte(payload)))
}

func main() {
	if os.Getenv("MOCK_FATAL") != "" {
		frame("FATAL", os.Getenv("MOCK_FATAL"))
		os.Exit(1)
	}
	frame("READY", "")

	r := bufio.NewReader(os.Stdin)
	for {
		header, err := r.ReadString('\n')
		if err != nil {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		code := string(buf)

		switch {
		case code == "exit":
			fmt.Fprint(os.Stderr, "bye\n")
			os.Exit(3)
		case code == "spin":
			for {
			}
		case strings.HasPrefix(code, "raise "):
			frame("ERROR", strings.TrimPrefix(code, "raise "))
		default:
			fmt.Print("echo")
			frame("DONE", code)
		}
	}
}
