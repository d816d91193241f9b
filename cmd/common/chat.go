package common

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/station"
)

// FormatDelivery renders a delivery as one chat line.
func FormatDelivery(d station.Delivery) string {
	switch d.Kind {
	case station.DeliveryAck:
		return fmt.Sprintf("%s received %s", d.From, d.Ref)
	default:
		if d.Destination != "" {
			return fmt.Sprintf("%s (to you): %s", d.From, d.Payload)
		}
		return fmt.Sprintf("%s: %s", d.From, d.Payload)
	}
}

// ParseChatLine splits "@id message" into a unicast; other lines broadcast.
func ParseChatLine(line string) (protocol.StationID, string, error) {
	if !strings.HasPrefix(line, "@") {
		return "", line, nil
	}
	name, msg, _ := strings.Cut(line[1:], " ")
	id, err := protocol.NewStationID(name)
	if err != nil {
		return "", "", err
	}
	return id, strings.TrimSpace(msg), nil
}

// Chat sends every line of in to the ring until in ends or ctx is done. Read
// errors end the chat; send errors are reported on errOut.
func Chat(ctx context.Context, h *station.Handle, in io.Reader, errOut io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			dest, msg, err := ParseChatLine(line)
			if err == nil {
				err = h.Send(ctx, dest, []byte(msg))
			}
			if err != nil {
				fmt.Fprintf(errOut, "not sent: %v\n", err)
			}
		}
	}
}
