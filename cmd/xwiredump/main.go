package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/klauspost/compress/zstd"

	"xwire/internal/config"
	"xwire/internal/metrics"
	"xwire/pkg/schema"
	"xwire/pkg/stream"
	"xwire/pkg/wire"
	"xwire/pkg/x11"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "decode":
		cmdDecode(args)
	case "pcap":
		cmdPcap(args)
	case "tail":
		cmdTail(args)
	case "status":
		cmdStatus(args)
	case "version":
		cmdVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`X wire protocol dump tool

Usage: xwiredump <command> [options]

Commands:
  decode <file>       Decode one direction of a captured stream
                      (raw bytes, hex text with --hex, .zst compressed)
  pcap <file> [port]  Decode both directions of an X connection from an
                      offline pcap capture (default port: 6000)
  tail <file>         Follow a growing capture file and decode new
                      messages as they arrive
  status [addr]       Query runtime counters from the metrics endpoint
  version             Show version information

Options:
  --config=<path>     Configuration file (byte order, strictness,
                      extension schema files, metrics listener)
  --server            Stream is server-to-client (decode replies,
                      events, errors instead of requests)
  --setup             Stream starts at connection open with the setup
                      exchange
  --hex               Input file is hex text rather than raw bytes

Examples:
  xwiredump decode requests.bin
  xwiredump decode --server --setup server.bin
  xwiredump decode --hex trace.hex
  xwiredump pcap session.pcap 6001
  xwiredump tail --config=xwire.yaml live.bin
  xwiredump status 127.0.0.1:9321`)
}

// flags shared by the stream-consuming subcommands. cfgPath is kept so
// long-running commands can watch the file for reloads.
type streamFlags struct {
	cfg     *config.Config
	cfgPath string
	server  bool
	setup   bool
	hexIn   bool
	rest    []string
}

func parseStreamFlags(args []string) (*streamFlags, error) {
	f := &streamFlags{cfg: config.Default()}
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "--config="):
			path := strings.TrimPrefix(a, "--config=")
			cfg, err := config.Load(path)
			if err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
			f.cfg = cfg
			f.cfgPath = path
		case a == "--server":
			f.server = true
		case a == "--setup":
			f.setup = true
		case a == "--hex":
			f.hexIn = true
		case strings.HasPrefix(a, "--"):
			return nil, fmt.Errorf("unknown flag %s", a)
		default:
			f.rest = append(f.rest, a)
		}
	}
	return f, nil
}

// buildRegistry loads the built-in catalogue plus any extension
// schema files named in the config.
func buildRegistry(cfg *config.Config) (*x11.Registry, error) {
	reg := x11.Core()
	for _, path := range cfg.SchemaFiles {
		doc, err := schema.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := reg.AddDocument(doc); err != nil {
			return nil, fmt.Errorf("schema %s: %w", path, err)
		}
	}
	return reg, nil
}

func readInput(path string, hexIn bool) ([]byte, error) {
	var r io.Reader
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r = f

	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if hexIn {
		clean := strings.Map(func(c rune) rune {
			if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
				return -1
			}
			return c
		}, string(data))
		return hex.DecodeString(clean)
	}
	return data, nil
}

func cmdDecode(args []string) {
	f, err := parseStreamFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if len(f.rest) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: xwiredump decode [--config=path] [--server] [--setup] [--hex] <file>\n")
		os.Exit(1)
	}

	data, err := readInput(f.rest[0], f.hexIn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", f.rest[0], err)
		os.Exit(1)
	}
	reg, err := buildRegistry(f.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	dir := stream.ClientToServer
	if f.server {
		dir = stream.ServerToClient
	}
	opts := []stream.Option{stream.WithPolicy(f.cfg.Policy())}
	if f.setup {
		opts = append(opts, stream.WithSetupPrefix())
	}

	sc := stream.NewScanner(data, f.cfg.Order(), reg, dir, opts...)
	records, err := stream.ScanAll(sc)
	for _, rec := range records {
		printRecord(rec)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan stopped: %v\n", err)
		os.Exit(1)
	}
}

func cmdPcap(args []string) {
	f, err := parseStreamFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if len(f.rest) < 1 || len(f.rest) > 2 {
		fmt.Fprintf(os.Stderr, "Usage: xwiredump pcap [--config=path] [--setup] <file> [port]\n")
		os.Exit(1)
	}
	port := 6000
	if len(f.rest) == 2 {
		if _, err := fmt.Sscanf(f.rest[1], "%d", &port); err != nil {
			fmt.Fprintf(os.Stderr, "Bad port %q: %v\n", f.rest[1], err)
			os.Exit(1)
		}
	}

	client, server, err := extractStreams(f.rest[0], port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read capture: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Extracted %d client bytes, %d server bytes (port %d)\n", len(client), len(server), port)

	reg, err := buildRegistry(f.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	opts := []stream.Option{stream.WithPolicy(f.cfg.Policy())}
	if f.setup {
		opts = append(opts, stream.WithSetupPrefix())
	}

	// Pair replies to requests by walking the client stream first: the
	// nth request on a connection has sequence number n (mod 2^16).
	csc := stream.NewScanner(client, f.cfg.Order(), reg, stream.ClientToServer, opts...)
	crecords, cerr := stream.ScanAll(csc)
	pending := make(map[uint16]uint8, len(crecords))
	seq := uint16(0)
	for _, rec := range crecords {
		if rec.Message != nil && rec.Message.Kind == x11.KindRequest {
			seq++
			pending[seq] = rec.Message.Code
		} else if rec.Err != nil {
			seq++
		}
	}
	resolve := func(sequence uint16) (uint8, bool) {
		op, ok := pending[sequence]
		return op, ok
	}

	fmt.Println("\n== client to server ==")
	for _, rec := range crecords {
		printRecord(rec)
	}
	if cerr != nil {
		fmt.Fprintf(os.Stderr, "Client scan stopped: %v\n", cerr)
	}

	fmt.Println("\n== server to client ==")
	// The client stream's byte-order byte governs the server stream too.
	sopts := append([]stream.Option{stream.WithReplyResolver(resolve)}, opts...)
	ssc := stream.NewScanner(server, csc.Order(), reg, stream.ServerToClient, sopts...)
	srecords, serr := stream.ScanAll(ssc)
	for _, rec := range srecords {
		printRecord(rec)
	}
	if serr != nil {
		fmt.Fprintf(os.Stderr, "Server scan stopped: %v\n", serr)
	}
}

// extractStreams reassembles the two directions of the first X
// connection in an offline capture, keyed by the server port. In-order
// captures only; retransmissions and reordering need a full
// reassembler and are out of scope for a dump tool.
func extractStreams(path string, port int) (client, server []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("open pcap: %w", err)
	}
	source := gopacket.NewPacketSource(r, r.LinkType())
	for packet := range source.Packets() {
		tcp, ok := packet.TransportLayer().(*layers.TCP)
		if !ok {
			continue
		}
		payload := tcp.LayerPayload()
		if len(payload) == 0 {
			continue
		}
		switch {
		case int(tcp.DstPort) == port:
			client = append(client, payload...)
		case int(tcp.SrcPort) == port:
			server = append(server, payload...)
		}
	}
	return client, server, nil
}

// tailSession is the scan state a tail run carries between drains.
// Config reloads swap the policy and the registry; the byte order
// follows the stream itself once scanning starts.
type tailSession struct {
	cfg    *config.Config
	reg    *x11.Registry
	policy wire.Policy
}

// apply takes over cfg, rebuilding the registry only when the schema
// file list changed. Reload failures (a schema file went bad) leave
// the previous state in place.
func (s *tailSession) apply(cfg *config.Config) error {
	if cfg == s.cfg {
		return nil
	}
	if s.cfg == nil || !slices.Equal(cfg.SchemaFiles, s.cfg.SchemaFiles) {
		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}
		s.reg = reg
	}
	s.policy = cfg.Policy()
	s.cfg = cfg
	return nil
}

func cmdTail(args []string) {
	f, err := parseStreamFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if len(f.rest) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: xwiredump tail [--config=path] [--server] [--setup] <file>\n")
		os.Exit(1)
	}
	path := f.rest[0]

	cfg := f.cfg
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Listen); err != nil {
				fmt.Fprintf(os.Stderr, "metrics listener: %v\n", err)
			}
		}()
	}

	// With a config file the session follows it: edits to strictness or
	// the schema file list apply on the next drain without restarting
	// the capture.
	var reload *config.ReloadableConfig
	if f.cfgPath != "" {
		reload, err = config.NewReloadable(f.cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		defer reload.Close()
		cfg = reload.Get()
	}

	sess := &tailSession{}
	if err := sess.apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	dir := stream.ClientToServer
	if f.server {
		dir = stream.ServerToClient
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create watcher: %v\n", err)
		os.Exit(1)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to watch %s: %v\n", path, err)
		os.Exit(1)
	}

	order := cfg.Order()
	expectSetup := f.setup

	var pending []byte
	base := 0

	// drain scans every complete frame in the pending buffer and keeps
	// the truncated tail for the next write event.
	drain := func() {
		if reload != nil {
			if err := sess.apply(reload.Get()); err != nil {
				fmt.Fprintf(os.Stderr, "Config reload: %v\n", err)
			}
		}
		opts := []stream.Option{stream.WithPolicy(sess.policy)}
		if expectSetup {
			opts = append(opts, stream.WithSetupPrefix())
		}
		sc := stream.NewScanner(pending, order, sess.reg, dir, opts...)
		consumed := 0
		for {
			rec, err := sc.Next()
			if err != nil {
				// EOF is a clean boundary; anything else is a truncated
				// tail. Either way, wait for more bytes.
				break
			}
			rec.Offset += base
			printRecord(rec)
			consumed = sc.Pos()
			expectSetup = false
			order = sc.Order()
		}
		pending = pending[consumed:]
		base += consumed
	}

	readMore := func() {
		chunk, err := io.ReadAll(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read %s: %v\n", path, err)
			return
		}
		if len(chunk) == 0 {
			return
		}
		pending = append(pending, chunk...)
		drain()
	}

	readMore()
	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				readMore()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		}
	}
}

func cmdStatus(args []string) {
	addr := "127.0.0.1:9321"
	if len(args) > 0 {
		addr = args[0]
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/metrics.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Messages decoded: %d\n", snap.MessagesDecoded)
	fmt.Printf("Decode errors:    %d\n", snap.DecodeErrors)
	fmt.Printf("Unknown messages: %d\n", snap.UnknownMessages)
	fmt.Printf("Bytes scanned:    %d\n", snap.BytesScanned)
	fmt.Printf("Records scanned:  %d\n", snap.RecordsScanned)
	fmt.Printf("Updated:          %s\n", time.Unix(snap.UpdatedUnix, 0).Format(time.RFC3339))
}

func cmdVersion() {
	fmt.Println("xwiredump")
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printRecord(rec *stream.Record) {
	if rec.Err != nil {
		fmt.Printf("%08x  !! %v\n", rec.Offset, rec.Err)
		fmt.Printf("          raw: %s\n", hex.EncodeToString(rec.Raw))
		return
	}
	m := rec.Message
	head := fmt.Sprintf("%08x  %s %s", rec.Offset, m.Kind, m.Name)
	if m.Kind != x11.KindRequest && m.Kind != x11.KindSetupRequest && m.Kind != x11.KindSetupReply {
		head += fmt.Sprintf(" seq=%d", m.Sequence)
	}
	if m.SendEvent {
		head += " (sent)"
	}
	fmt.Println(head)

	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("          %s: %s\n", name, formatField(m.Fields[name]))
	}
}

func formatField(v any) string {
	switch t := v.(type) {
	case []byte:
		if len(t) > 32 {
			return fmt.Sprintf("%d bytes: %s...", len(t), hex.EncodeToString(t[:32]))
		}
		return hex.EncodeToString(t)
	case string:
		return fmt.Sprintf("%q", t)
	case schema.Value:
		return formatMap(t)
	case map[string]any:
		return formatMap(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, formatField(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatMap(m map[string]any) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, m[name]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
