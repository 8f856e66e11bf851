package ingestor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	lj "github.com/elastic/go-lumber/lj"
	srv2 "github.com/elastic/go-lumber/server/v2"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

var ErrNoKey = errors.New("ingestor: event carries no key")

// --- TCP Ingestor using go-lumber v2 ---

// TCPIngestor receives keys from lumberjack v2 clients such as Filebeat.
type TCPIngestor struct {
	listener    net.Listener
	readTimeout time.Duration // for server
	events      chan *lj.Batch
	server      *srv2.Server
}

func NewTCPIngestor(addr string, readTimeout time.Duration) (*TCPIngestor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &TCPIngestor{
		listener:    ln,
		readTimeout: readTimeout,
		events:      make(chan *lj.Batch, 1000),
	}, nil
}

// Addr is the address the ingestor listens on.
func (ing *TCPIngestor) Addr() net.Addr {
	return ing.listener.Addr()
}

// Accept starts the lumberjack v2 Server.
func (ing *TCPIngestor) Accept() error {
	srv, err := srv2.NewWithListener(
		ing.listener,
		srv2.Timeout(ing.readTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create lumberjack server: %w", err)
	}
	ing.server = srv

	// Pull batches off ReceiveChan and ack them.
	go func() {
		for batch := range ing.server.ReceiveChan() {
			ing.events <- batch
			batch.ACK()
		}
		close(ing.events)
	}()

	klog.V(1).Infof("ingestor: lumberjack listening on %s", ing.listener.Addr())
	return nil
}

// parseEvent appends the keys of one event to out. A "message" field holds
// whitespace separated decimal keys, a "value" field holds a single number.
func parseEvent(evt map[string]interface{}, mask uint64, out []uint64) ([]uint64, error) {
	if msg, ok := evt["message"].(string); ok {
		for _, tok := range strings.Fields(msg) {
			v, err := parseKey(tok, 64, mask)
			if err != nil {
				return out, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	raw, ok := evt["value"]
	if !ok {
		return out, ErrNoKey
	}
	v, err := numericValue(raw)
	if err != nil {
		return out, err
	}
	if v&^mask != 0 {
		return out, fmt.Errorf("%w: %d", ErrKeyRange, v)
	}
	return append(out, v), nil
}

func numericValue(raw interface{}) (uint64, error) {
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= 1<<64 {
			return 0, fmt.Errorf("%w: %v", ErrParse, v)
		}
		return uint64(v), nil
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	case int:
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrParse, v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrParse, v)
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrParse, raw)
	}
}

// ReadBatch drains the batches received so far and returns their keys.
// Events that carry no valid key are skipped.
func (ing *TCPIngestor) ReadBatch(keyBits int) ([]uint64, int, error) {
	var out []uint64
	skipped := 0
	mask := keyMask(keyBits)

	for {
		select {
		case batch, ok := <-ing.events:
			if !ok {
				return out, skipped, nil
			}
			out, skipped = appendBatch(batch, mask, out, skipped)
		default:
			// Channel is empty, return what we have
			return out, skipped, nil
		}
	}
}

func appendBatch(batch *lj.Batch, mask uint64, out []uint64, skipped int) ([]uint64, int) {
	for _, evt := range batch.Events {
		m, ok := evt.(map[string]interface{})
		if !ok {
			skipped++
			continue
		}
		var err error
		before := len(out)
		if out, err = parseEvent(m, mask, out); err != nil {
			out = out[:before]
			skipped++
		}
	}
	return out, skipped
}

// CollectKeys gathers keys from ing until count keys arrived, ctx ends or the
// server shuts down. count <= 0 collects until ctx ends or the server closes.
// Keys past count in the last batch are dropped.
func CollectKeys[K constraints.Unsigned](ctx context.Context, ing *TCPIngestor, count, keyBits int) ([]K, error) {
	mask := keyMask(keyBits)
	var raw []uint64
	skipped := 0

	done := func(err error) ([]K, error) {
		if count > 0 && len(raw) > count {
			raw = raw[:count]
		}
		if skipped > 0 {
			klog.Warningf("ingestor: skipped %d events without a valid key", skipped)
		}
		keys := make([]K, len(raw))
		for i, v := range raw {
			keys[i] = K(v)
		}
		klog.V(2).Infof("ingestor: collected %d keys", len(keys))
		return keys, err
	}

	for {
		select {
		case <-ctx.Done():
			// Keep batches that were queued before ctx ended.
			more, n, _ := ing.ReadBatch(keyBits)
			raw = append(raw, more...)
			skipped += n
			return done(ctx.Err())
		case batch, ok := <-ing.events:
			if !ok {
				return done(nil)
			}
			raw, skipped = appendBatch(batch, mask, raw, skipped)
			if count > 0 && len(raw) >= count {
				return done(nil)
			}
		}
	}
}

// Close shuts down the server and listener.
func (ing *TCPIngestor) Close() error {
	if ing.server != nil {
		ing.server.Close()
	}
	return ing.listener.Close()
}
