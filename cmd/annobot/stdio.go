package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/annobot/annobot/pkg/annotate"
)

// stdioTransport is a minimal transport for local use: messages come
// from stdin lines and annotations go to stdout. Real chat transports
// implement the same two interfaces.
type stdioTransport struct {
	scanner *bufio.Scanner
}

func newStdioTransport() *stdioTransport {
	return &stdioTransport{scanner: bufio.NewScanner(os.Stdin)}
}

func (t *stdioTransport) Next(ctx context.Context) (annotate.Origin, string, error) {
	if err := ctx.Err(); err != nil {
		return annotate.Origin{}, "", err
	}
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return annotate.Origin{}, "", err
		}
		return annotate.Origin{}, "", io.EOF
	}
	origin := annotate.Origin{Network: "stdio", Channel: "#console", Nick: "user"}
	return origin, t.scanner.Text(), nil
}

func (t *stdioTransport) Emit(origin annotate.Origin, line string) {
	fmt.Printf("%s %s\n", origin.Channel, line)
}
