package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oxmail/smtpauth/codec"
)

// Metrics tracks load test statistics
type Metrics struct {
	attempted atomic.Int64
	succeeded atomic.Int64
	rejected  atomic.Int64
	errored   atomic.Int64
	latencies []time.Duration
	latencyMu sync.Mutex
	startTime time.Time
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.latencyMu.Lock()
	m.latencies = append(m.latencies, d)
	m.latencyMu.Unlock()
}

func (m *Metrics) percentile(p float64) time.Duration {
	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	addr := flag.String("addr", "localhost:2525", "server address")
	username := flag.String("user", "bench", "username to authenticate as")
	password := flag.String("pass", "benchpassword", "password")
	workers := flag.Int("workers", 10, "concurrent connections")
	attempts := flag.Int("n", 1000, "authentication attempts per worker")
	flag.Parse()

	metrics := &Metrics{startTime: time.Now()}
	initial := codec.Encode([]byte("\x00" + *username + "\x00" + *password))

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(*addr, initial, *attempts, metrics)
		}()
	}
	wg.Wait()

	elapsed := time.Since(metrics.startTime)
	total := metrics.attempted.Load()
	fmt.Printf("attempts:  %d in %v (%.0f/s)\n", total, elapsed.Round(time.Millisecond),
		float64(total)/elapsed.Seconds())
	fmt.Printf("succeeded: %d\n", metrics.succeeded.Load())
	fmt.Printf("rejected:  %d\n", metrics.rejected.Load())
	fmt.Printf("errors:    %d\n", metrics.errored.Load())
	fmt.Printf("latency:   p50=%v p95=%v p99=%v\n",
		metrics.percentile(0.50), metrics.percentile(0.95), metrics.percentile(0.99))

	if metrics.errored.Load() > 0 {
		os.Exit(1)
	}
}

// runWorker opens one connection and drives AUTH PLAIN dialogues over
// it, logging out with RSET between attempts.
func runWorker(addr, initial string, attempts int, metrics *Metrics) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Println("dial failed:", err)
		metrics.errored.Add(int64(attempts))
		return
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	// Greeting, then EHLO to confirm AUTH is advertised
	if _, err := readReply(reader); err != nil {
		log.Println("greeting failed:", err)
		metrics.errored.Add(int64(attempts))
		return
	}
	fmt.Fprintf(conn, "EHLO bench.client\r\n")
	ehlo, err := readReply(reader)
	if err != nil || !strings.Contains(ehlo, "AUTH") {
		log.Println("server does not advertise AUTH:", err)
		metrics.errored.Add(int64(attempts))
		return
	}

	for i := 0; i < attempts; i++ {
		metrics.attempted.Add(1)
		started := time.Now()

		fmt.Fprintf(conn, "AUTH PLAIN %s\r\n", initial)
		reply, err := readReply(reader)
		if err != nil {
			metrics.errored.Add(1)
			return
		}
		metrics.recordLatency(time.Since(started))

		switch {
		case strings.HasPrefix(reply, "235"):
			metrics.succeeded.Add(1)
			fmt.Fprintf(conn, "RSET\r\n")
			if _, err := readReply(reader); err != nil {
				metrics.errored.Add(1)
				return
			}
		case strings.HasPrefix(reply, "535"):
			metrics.rejected.Add(1)
		default:
			metrics.errored.Add(1)
		}
	}
	fmt.Fprintf(conn, "QUIT\r\n")
}

// readReply consumes one SMTP reply, following 250- continuations
func readReply(reader *bufio.Reader) (string, error) {
	var last string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		last += line
		if len(line) < 4 || line[3] != '-' {
			return strings.TrimSpace(last), nil
		}
	}
}
