// Command teisync renders TEI editions and resolves positions between them.
// It also runs the sync API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/TeiSync/core/align"
	"github.com/FocuswithJustin/TeiSync/core/cache"
	"github.com/FocuswithJustin/TeiSync/core/footnote"
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/library"
	"github.com/FocuswithJustin/TeiSync/core/sqlite"
	"github.com/FocuswithJustin/TeiSync/core/store"
	teixml "github.com/FocuswithJustin/TeiSync/core/xml"
	"github.com/FocuswithJustin/TeiSync/internal/api"
	"github.com/FocuswithJustin/TeiSync/internal/logging"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	Config    kong.ConfigFlag `help:"Load flag defaults from a JSON file" type:"path"`
	LogLevel  string          `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn" env:"TEISYNC_LOG_LEVEL"`
	LogFormat string          `name:"log-format" help:"Log format (json, text)" default:"text" env:"TEISYNC_LOG_FORMAT"`
	StorePath string          `name:"store" help:"SQLite render store; empty disables persistence" env:"TEISYNC_STORE" type:"path"`
	Corpus    string          `name:"corpus" short:"C" help:"Corpus directory served by the API" default:"." env:"TEISYNC_CORPUS" type:"path"`
	CacheSize int             `name:"cache-size" help:"Documents kept in memory" default:"64" env:"TEISYNC_CACHE_SIZE"`
	MaxSize   string          `name:"max-size" help:"Largest markup file accepted" default:"64MiB" env:"TEISYNC_MAX_SIZE"`
}

// CLI defines the command-line interface for teisync.
type CLI struct {
	Globals

	Render   RenderCmd   `cmd:"" help:"Print the rendered text of a TEI file"`
	Segments SegmentsCmd `cmd:"" help:"List the sync segments of a TEI file"`
	Notes    NotesCmd    `cmd:"" help:"List footnotes and their markers"`
	Marker   MarkerCmd   `cmd:"" help:"Show the footnote for a marker near an offset"`
	Sync     SyncCmd     `cmd:"" help:"Resolve an offset in one edition to the other"`
	Key      KeyCmd      `cmd:"" help:"Parse and normalize a segment key"`
	Info     InfoCmd     `cmd:"" help:"Show header metadata and render statistics"`
	Units    UnitsCmd    `cmd:"" help:"List translatable units"`
	Serve    ServeCmd    `cmd:"" help:"Start the sync API server"`
	Store    StoreGroup  `cmd:"" help:"Render store maintenance"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// StoreGroup contains render store operations.
type StoreGroup struct {
	Stats StoreStatsCmd `cmd:"" help:"Show store size and entry count"`
	List  StoreListCmd  `cmd:"" help:"List stored renders"`
	Prune StorePruneCmd `cmd:"" help:"Remove renders not used recently"`
}

func (g *Globals) initLogging(w io.Writer) error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLoggerTo(w, level, format)
	return nil
}

// library opens the store, if configured, and a library rooted at the
// corpus. The returned func closes the store.
func (g *Globals) library(ctx context.Context) (*library.Library, func(), error) {
	maxSize, err := humanize.ParseBytes(g.MaxSize)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --max-size: %w", err)
	}
	cfg := library.Config{
		Root:          g.Corpus,
		MaxMarkupSize: int64(maxSize),
		Cache:         cache.Config{MaxSize: g.CacheSize},
	}
	if g.StorePath == "" {
		return library.New(cfg, nil), func() {}, nil
	}
	st, err := store.Open(ctx, g.StorePath)
	if err != nil {
		return nil, nil, err
	}
	return library.New(cfg, st), func() { st.Close() }, nil
}

func (g *Globals) openStore(ctx context.Context, readOnly bool) (*store.Store, error) {
	if g.StorePath == "" {
		return nil, fmt.Errorf("no store configured (use --store or TEISYNC_STORE)")
	}
	if readOnly {
		return store.OpenReadOnly(ctx, g.StorePath)
	}
	return store.Open(ctx, g.StorePath)
}

// load renders one file through a fresh library.
func (g *Globals) load(ctx context.Context, path string) (*library.Loaded, error) {
	lib, done, err := g.library(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return lib.Load(ctx, path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderCmd prints rendered text.
type RenderCmd struct {
	Path string `arg:"" help:"TEI file" type:"existingfile"`
	Base bool   `help:"Print the base text without footnote markers"`
	JSON bool   `name:"json" help:"Print the full render as JSON"`
}

func (c *RenderCmd) Run(g *Globals, out io.Writer) error {
	ctx := context.Background()
	loaded, err := g.load(ctx, c.Path)
	if err != nil {
		return err
	}
	doc := loaded.Doc
	if c.JSON {
		return writeJSON(out, map[string]any{
			"name":        loaded.Name,
			"fingerprint": loaded.Fingerprint,
			"origin":      loaded.Origin,
			"text":        doc.Text(),
			"base_text":   doc.BaseText(),
			"segments":    doc.Segments(),
			"annotations": doc.Annotations(),
			"markers":     doc.Markers(),
		})
	}
	text := doc.Text()
	if c.Base {
		text = doc.BaseText()
	}
	_, err = fmt.Fprintln(out, text)
	return err
}

// SegmentsCmd lists segments.
type SegmentsCmd struct {
	Path string `arg:"" help:"TEI file" type:"existingfile"`
}

func (c *SegmentsCmd) Run(g *Globals, out io.Writer) error {
	loaded, err := g.load(context.Background(), c.Path)
	if err != nil {
		return err
	}
	segs := loaded.Doc.Segments()
	if len(segs) == 0 {
		fmt.Fprintln(out, "No segments.")
		return nil
	}
	fmt.Fprintf(out, "%-8s %-8s %s\n", "START", "END", "KEY")
	for _, s := range segs {
		key := s.Key
		if key == "" {
			key = "(untagged)"
		}
		fmt.Fprintf(out, "%-8d %-8d %s\n", s.Start, s.End, key)
	}
	return nil
}

// NotesCmd lists footnotes.
type NotesCmd struct {
	Path string `arg:"" help:"TEI file" type:"existingfile"`
}

func (c *NotesCmd) Run(g *Globals, out io.Writer) error {
	loaded, err := g.load(context.Background(), c.Path)
	if err != nil {
		return err
	}
	doc := loaded.Doc
	notes := doc.Annotations()
	if len(notes) == 0 {
		fmt.Fprintln(out, "No notes.")
		return nil
	}
	for i, m := range doc.Markers() {
		a := notes[m.AnnotationIndex]
		fmt.Fprintf(out, "%s\t@%d\t[%s] %s\n", footnote.Marker(i+1), m.Start, a.Kind, a.Text)
	}
	for _, a := range notes {
		if !a.Anchored() {
			fmt.Fprintf(out, "-\tunanchored\t[%s] %s\n", a.Kind, a.Text)
		}
	}
	return nil
}

// MarkerCmd looks up a footnote by marker position.
type MarkerCmd struct {
	Path   string `arg:"" help:"TEI file" type:"existingfile"`
	Offset int    `arg:"" help:"Display offset (runes)"`
}

func (c *MarkerCmd) Run(g *Globals, out io.Writer) error {
	if c.Offset < 0 {
		return fmt.Errorf("offset must be >= 0")
	}
	loaded, err := g.load(context.Background(), c.Path)
	if err != nil {
		return err
	}
	doc := loaded.Doc
	m, ok := doc.MarkerAt(c.Offset)
	if !ok {
		fmt.Fprintf(out, "No marker near offset %d.\n", c.Offset)
		return nil
	}
	a := doc.Annotations()[m.AnnotationIndex]
	fmt.Fprintf(out, "Marker:  %d-%d\n", m.Start, m.End)
	fmt.Fprintf(out, "Kind:    %s\n", a.Kind)
	fmt.Fprintf(out, "Note:    %s\n", a.Text)
	return nil
}

// SyncCmd resolves a position across two editions.
type SyncCmd struct {
	Source  string `arg:"" help:"Source edition" type:"existingfile"`
	Dest    string `arg:"" help:"Destination edition" type:"existingfile"`
	Offset  int    `arg:"" help:"Display offset in the source edition"`
	Reverse bool   `help:"Resolve from the destination edition back to the source"`
}

func (c *SyncCmd) Run(g *Globals, out io.Writer) error {
	if c.Offset < 0 {
		return fmt.Errorf("offset must be >= 0")
	}
	ctx := context.Background()
	lib, done, err := g.library(ctx)
	if err != nil {
		return err
	}
	defer done()

	src, err := lib.Load(ctx, c.Source)
	if err != nil {
		return err
	}
	dst, err := lib.Load(ctx, c.Dest)
	if err != nil {
		return err
	}
	pair := align.Pair{Source: src.Doc, Dest: dst.Doc}
	m, ok := pair.Forward(c.Offset)
	if c.Reverse {
		m, ok = pair.Backward(c.Offset)
	}
	if !ok {
		fmt.Fprintf(out, "No corresponding position for offset %d.\n", c.Offset)
		return nil
	}
	fmt.Fprintf(out, "Offset:  %d\n", m.Offset)
	fmt.Fprintf(out, "Segment: %s [%d, %d)\n", m.Segment.Key, m.Segment.Start, m.Segment.End)
	fmt.Fprintf(out, "Via:     %s\n", m.Via)
	return nil
}

// KeyCmd normalizes segment keys.
type KeyCmd struct {
	Keys []string `arg:"" help:"Segment keys such as lb|0001a01|T"`
}

func (c *KeyCmd) Run(out io.Writer) error {
	for _, raw := range c.Keys {
		k, err := ir.ParseSegmentKey(raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\ttag=%s", k.String(), k.Tag)
		if len(k.Values) > 0 {
			fmt.Fprintf(out, "\tvalues=%s", strings.Join(k.Values, ","))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// InfoCmd summarizes one file.
type InfoCmd struct {
	Path string `arg:"" help:"TEI file" type:"existingfile"`
}

func (c *InfoCmd) Run(g *Globals, out io.Writer) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	loaded, err := g.load(context.Background(), c.Path)
	if err != nil {
		return err
	}
	doc := loaded.Doc

	fmt.Fprintln(out, "File")
	fmt.Fprintln(out, "----")
	fmt.Fprintf(out, "  Name:        %s\n", loaded.Name)
	fmt.Fprintf(out, "  Size:        %s\n", humanize.Bytes(uint64(len(data))))
	fmt.Fprintf(out, "  Fingerprint: %s\n", loaded.Fingerprint)

	if h, err := teixml.ParseHeader(string(data)); err == nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Header")
		fmt.Fprintln(out, "------")
		printField(out, "Title", h.Title)
		printField(out, "Author", h.Author)
		printField(out, "Edition", h.Edition)
		printField(out, "IDNo", h.IDNo)
		fmt.Fprintf(out, "  Language:    %s (%s)\n", h.Language, h.Script())
	} else {
		logging.Debug("header not parsed", "path", c.Path, "error", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Render")
	fmt.Fprintln(out, "------")
	fmt.Fprintf(out, "  Characters:  %s\n", humanize.Comma(int64(doc.Len())))
	fmt.Fprintf(out, "  Segments:    %d\n", len(doc.Segments()))
	fmt.Fprintf(out, "  Notes:       %d\n", len(doc.Annotations()))
	fmt.Fprintf(out, "  Markers:     %d\n", len(doc.Markers()))
	return nil
}

func printField(out io.Writer, name, value string) {
	if value != "" {
		fmt.Fprintf(out, "  %-12s %s\n", name+":", value)
	}
}

// UnitsCmd lists translatable units.
type UnitsCmd struct {
	Path string `arg:"" help:"TEI file" type:"existingfile"`
	JSON bool   `name:"json" help:"Print units as JSON"`
}

func (c *UnitsCmd) Run(out io.Writer) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	units, err := teixml.TranslatableUnits(string(data))
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(out, units)
	}
	for _, u := range units {
		id := u.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", u.Path, u.Tag, id, u.Text)
	}
	return nil
}

// ServeCmd starts the sync API server.
type ServeCmd struct {
	Port           int           `help:"HTTP server port" default:"8080" env:"TEISYNC_PORT"`
	AllowedOrigins []string      `name:"allowed-origin" help:"Browser origins allowed for CORS and websockets" env:"TEISYNC_ALLOWED_ORIGINS"`
	APIKey         string        `name:"api-key" help:"Require this X-API-Key on API requests" env:"TEISYNC_API_KEY"`
	RateLimit      int           `name:"rate-limit" help:"Requests per minute per client (0 disables)" default:"120" env:"TEISYNC_RATE_LIMIT"`
	RateBurst      int           `name:"rate-burst" help:"Rate limit burst" default:"20" env:"TEISYNC_RATE_BURST"`
	SessionIdle    time.Duration `name:"session-idle" help:"Expire sessions idle this long" default:"30m" env:"TEISYNC_SESSION_IDLE"`
	MaxSessions    int           `name:"max-sessions" help:"Maximum open sessions" default:"256" env:"TEISYNC_MAX_SESSIONS"`
	TLSCert        string        `name:"tls-cert" help:"TLS certificate file" env:"TEISYNC_TLS_CERT" type:"path"`
	TLSKey         string        `name:"tls-key" help:"TLS key file" env:"TEISYNC_TLS_KEY" type:"path"`
}

func (c *ServeCmd) config(g *Globals) api.Config {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.CorpusDir = g.Corpus
	cfg.AllowedOrigins = c.AllowedOrigins
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.RateBurst
	cfg.SessionIdle = c.SessionIdle
	cfg.MaxSessions = c.MaxSessions
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{Enabled: true, CertFile: c.TLSCert, KeyFile: c.TLSKey}
	}
	return cfg
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := c.config(g)
	if err := cfg.Validate(); err != nil {
		return err
	}
	lib, done, err := g.library(ctx)
	if err != nil {
		return err
	}
	defer done()

	srv := api.NewServer(cfg, lib, version)
	return srv.ListenAndServe(ctx)
}

// StoreStatsCmd prints store statistics.
type StoreStatsCmd struct{}

func (c *StoreStatsCmd) Run(g *Globals, out io.Writer) error {
	ctx := context.Background()
	st, err := g.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Path:        %s\n", stats.Path)
	fmt.Fprintf(out, "Driver:      %s\n", stats.Driver)
	fmt.Fprintf(out, "Entries:     %d\n", stats.Entries)
	fmt.Fprintf(out, "Stored:      %s\n", humanize.Bytes(uint64(stats.CompressedBytes)))
	fmt.Fprintf(out, "Raw:         %s\n", humanize.Bytes(uint64(stats.RawBytes)))
	if stats.RawBytes > 0 {
		ratio := float64(stats.CompressedBytes) / float64(stats.RawBytes) * 100
		fmt.Fprintf(out, "Ratio:       %s%%\n", strconv.FormatFloat(ratio, 'f', 1, 64))
	}
	return nil
}

// StoreListCmd lists stored renders, most recently used first.
type StoreListCmd struct{}

func (c *StoreListCmd) Run(g *Globals, out io.Writer) error {
	ctx := context.Background()
	st, err := g.openStore(ctx, true)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "Store is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-24s %8s  used %s\n",
			e.Fingerprint[:12], e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.AccessedAt))
	}
	return nil
}

// StorePruneCmd removes stale renders.
type StorePruneCmd struct {
	OlderThan time.Duration `name:"older-than" help:"Remove renders not used for this long" default:"720h"`
}

func (c *StorePruneCmd) Run(g *Globals, out io.Writer) error {
	ctx := context.Background()
	st, err := g.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Prune(ctx, time.Now().Add(-c.OlderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Pruned %d render(s).\n", n)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(out, "teisync version %s\n", version)
	fmt.Fprintf(out, "sqlite driver: %s (%s)\n", info.Package, info.DriverType)
	return nil
}

// run parses args and executes the selected command. Command output goes to
// stdout; logs and usage errors go to stderr.
func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("teisync"),
		kong.Description("TeiSync - TEI rendering and cross-edition position sync"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Configuration(kong.JSON),
		kong.Writers(stdout, stderr),
		kong.BindTo(stdout, (*io.Writer)(nil)),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if err := cli.Globals.initLogging(stderr); err != nil {
		return err
	}
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "teisync: %v\n", err)
		os.Exit(1)
	}
}
