package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/samirrijal/venuefinder/internal/adapters/csvstore"
	"github.com/samirrijal/venuefinder/internal/adapters/memindex"
	natsadapter "github.com/samirrijal/venuefinder/internal/adapters/nats"
	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/usecases"
	"github.com/samirrijal/venuefinder/internal/pkg/logging"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var regionFlags = []cli.Flag{
	&cli.Float64Flag{Name: "lat-min", Usage: "Southern bound of the search region"},
	&cli.Float64Flag{Name: "lat-max", Usage: "Northern bound of the search region"},
	&cli.Float64Flag{Name: "lon-min", Usage: "Western bound of the search region"},
	&cli.Float64Flag{Name: "lon-max", Usage: "Eastern bound of the search region"},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "entrances",
		Usage: "Locate transit station entrances across agency datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the catalog and source files",
				Value:   "data",
				EnvVars: []string{"VENUEFINDER_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "catalog",
				Usage:   "Catalog file name inside the data directory",
				Value:   csvstore.DefaultCatalogFile,
				EnvVars: []string{"VENUEFINDER_DATA_CATALOG"},
			},
			&cli.IntFlag{
				Name:  "score-cutoff",
				Usage: "Minimum fuzzy score (0-100) a station name needs",
				Value: usecases.DefaultScoreCutoff,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum matched station names per source",
				Value: usecases.DefaultSourceLimit,
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Fuzzy search station entrances by name",
				ArgsUsage: "<query> [latMin latMax lonMin lonMax]",
				Flags:     regionFlags,
				Action:    searchCommand,
			},
			{
				Name:      "list",
				Usage:     "List every entrance of one source",
				ArgsUsage: "<source>",
				Flags:     regionFlags,
				Action:    listCommand,
			},
			{
				Name:   "sources",
				Usage:  "Show the source catalog",
				Action: sourcesCommand,
			},
			{
				Name:  "reload",
				Usage: "Ask every running API instance to re-read the catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "nats-url",
						Usage:   "NATS server URL",
						Value:   "nats://localhost:4222",
						EnvVars: []string{"VENUEFINDER_NATS_URL"},
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the request to be flushed",
						Value: 5 * time.Second,
					},
				},
				Action: reloadCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level := c.String("log-level")
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
	slog.SetDefault(logging.New(c.App.ErrWriter, level, "text"))
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: entrances search <query> [latMin latMax lonMin lonMax]", 1)
	}
	query := c.Args().First()

	region, err := regionFromContext(c, 1)
	if err != nil {
		return err
	}
	if region == nil {
		fmt.Fprintln(c.App.ErrWriter, "Warning: No bounding box. Searching all sources.")
	}

	entrances, _, err := openServices(c)
	if err != nil {
		return err
	}
	defer entrances.Release()

	results, err := entrances.Search(c.Context, query, region)
	if err != nil {
		return err
	}
	if countSources(results) > 1 {
		fmt.Fprintln(c.App.ErrWriter, "Warning: Multiple sources fulfilled query. Verify results.")
	}
	printResults(c.App.Writer, results)
	return nil
}

func listCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: entrances list <source>", 1)
	}

	region, err := regionFromContext(c, 1)
	if err != nil {
		return err
	}

	entrances, _, err := openServices(c)
	if err != nil {
		return err
	}
	defer entrances.Release()

	results, err := entrances.ListAll(c.Context, c.Args().First(), region)
	if errors.Is(err, domain.ErrSourceNotFound) {
		return cli.Exit(err.Error(), 2)
	}
	if err != nil {
		return err
	}
	printResults(c.App.Writer, results)
	return nil
}

func sourcesCommand(c *cli.Context) error {
	entrances, sources, err := openServices(c)
	if err != nil {
		return err
	}
	defer entrances.Release()

	list, err := sources.List(c.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tHANDLE\tLAT\tLON")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%s..%s\n", s.Label, s.Handle,
			formatCoord(s.Box.LatMin), formatCoord(s.Box.LatMax),
			formatCoord(s.Box.LonMin), formatCoord(s.Box.LonMax))
	}
	return tw.Flush()
}

func reloadCommand(c *cli.Context) error {
	conn, err := natsadapter.Connect(c.String("nats-url"))
	if err != nil {
		return err
	}
	defer conn.Close()

	pub, err := natsadapter.NewPublisher(conn)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	if err := pub.RequestCatalogReload(ctx); err != nil {
		return fmt.Errorf("request reload: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "catalog reload requested")
	return nil
}

// openServices builds the query services over the file-backed catalog.
func openServices(c *cli.Context) (*usecases.EntranceService, *usecases.SourceService, error) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	catalog, err := csvstore.NewCatalog(ctx, c.String("data-dir"), c.String("catalog"), slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	store := memindex.New(csvstore.NewStore(c.String("data-dir")))

	entrances, err := usecases.NewEntranceService(catalog, store,
		usecases.WithScoreCutoff(c.Int("score-cutoff")),
		usecases.WithSourceLimit(c.Int("limit")),
	)
	if err != nil {
		return nil, nil, err
	}
	return entrances, usecases.NewSourceService(catalog, nil), nil
}

// regionFromContext reads the region from the --lat-min style flags or, as
// the positional form, from four numbers following the first argument.
func regionFromContext(c *cli.Context, first int) (*domain.BoundingBox, error) {
	args := c.Args().Slice()
	if len(args) >= first+4 {
		var bounds [4]float64
		for i := range bounds {
			v, err := strconv.ParseFloat(args[first+i], 64)
			if err != nil {
				return nil, fmt.Errorf("bound %q is not a number", args[first+i])
			}
			bounds[i] = v
		}
		box := domain.BoxFromBounds(&bounds[0], &bounds[1], &bounds[2], &bounds[3])
		return &box, nil
	}

	var bounds [4]*float64
	given := false
	for i, name := range []string{"lat-min", "lat-max", "lon-min", "lon-max"} {
		if c.IsSet(name) {
			v := c.Float64(name)
			bounds[i] = &v
			given = true
		}
	}
	if !given {
		return nil, nil
	}
	box := domain.BoxFromBounds(bounds[0], bounds[1], bounds[2], bounds[3])
	return &box, nil
}

// printResults writes one heading per source and station followed by
// an indented coordinate line per entrance.
func printResults(w io.Writer, results []domain.MatchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	type key struct{ station, source string }
	seen := make(map[key]bool)
	for _, r := range results {
		k := key{r.StationName, r.Source}
		if !seen[k] {
			seen[k] = true
			fmt.Fprintf(w, "%s — %s\n", r.Source, r.StationName)
		}
		fmt.Fprintf(w, "  (%s, %s)\n", formatCoord(r.Lat), formatCoord(r.Lon))
	}
}

func countSources(results []domain.MatchResult) int {
	sources := make(map[string]struct{})
	for _, r := range results {
		sources[r.Source] = struct{}{}
	}
	return len(sources)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
