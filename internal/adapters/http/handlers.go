package http

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

const maxQueryLength = 200

// EntranceList is the JSON body of every entrance query.
type EntranceList struct {
	Entrances []domain.MatchResult `json:"entrances"`
}

// SearchEntrancesHandler matches station names across all sources.
// GET /v1/entrances?query=&lat_min=&lat_max=&lon_min=&lon_max=[&format=geojson]
func SearchEntrancesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return searchEntrances(c, deps, true)
	}
}

// LegacySearchHandler serves /api/entrances, whose rows carry only
// stationName, source, lat and lon.
func LegacySearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return searchEntrances(c, deps, false)
	}
}

func searchEntrances(c *fiber.Ctx, deps *Dependencies, withScores bool) error {
	if !c.Context().QueryArgs().Has("query") {
		return errBadRequest(c, "query parameter is required")
	}
	query := c.Query("query")
	if len(query) > maxQueryLength {
		return errBadRequest(c, "query too long (max 200 characters)")
	}
	region, err := parseRegion(c)
	if err != nil {
		return errBadRequest(c, err.Error())
	}

	results, err := deps.Entrances.Search(c.UserContext(), query, region)
	if err != nil {
		return respondError(c, err)
	}
	if !withScores {
		for i := range results {
			results[i].Score = 0
		}
	}
	return writeEntrances(c, results)
}

// SourceEntrancesHandler lists every entrance of one source, optionally inside
// a region. Bounds left out default to the source's own coverage box.
// GET /v1/sources/:source/entrances
func SourceEntrancesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return sourceEntrances(c, deps, c.Params("source"))
	}
}

// FixedSourceEntrancesHandler serves a single hard-wired source, as the
// legacy /api/entrances/cta endpoint did.
func FixedSourceEntrancesHandler(deps *Dependencies, source string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return sourceEntrances(c, deps, source)
	}
}

func sourceEntrances(c *fiber.Ctx, deps *Dependencies, source string) error {
	if strings.TrimSpace(source) == "" {
		return errBadRequest(c, "source is required")
	}
	region, err := parseRegion(c)
	if err != nil {
		return errBadRequest(c, err.Error())
	}

	results, err := deps.Entrances.ListAll(c.UserContext(), source, region)
	if err != nil {
		return respondError(c, err)
	}
	return writeEntrances(c, results)
}

// ListSourcesHandler returns the catalog, paginated.
// GET /v1/sources?offset=&limit=
func ListSourcesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sources, err := deps.Sources.List(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}

		offset, limit := parsePagination(c, 100, 200)
		pg := Pagination{Offset: offset, Limit: limit, Total: len(sources)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: paginate(sources, offset, limit), Pagination: pg})
	}
}

// GetSourceHandler returns one source by handle or label.
// GET /v1/sources/:source
func GetSourceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		src, err := deps.Sources.Get(c.UserContext(), c.Params("source"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(src)
	}
}

// parseRegion reads the optional lat_min/lat_max/lon_min/lon_max query
// parameters. It returns nil when none is given.
func parseRegion(c *fiber.Ctx) (*domain.BoundingBox, error) {
	var bounds [4]*float64
	given := false
	for i, name := range []string{"lat_min", "lat_max", "lon_min", "lon_max"} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return nil, &paramError{name: name, value: raw}
		}
		bounds[i] = &v
		given = true
	}
	if !given {
		return nil, nil
	}
	box := domain.BoxFromBounds(bounds[0], bounds[1], bounds[2], bounds[3])
	return &box, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return e.name + " must be a number, got " + strconv.Quote(e.value)
}

// writeEntrances renders results as JSON, or as a GeoJSON FeatureCollection
// when format=geojson.
func writeEntrances(c *fiber.Ctx, results []domain.MatchResult) error {
	if results == nil {
		results = []domain.MatchResult{}
	}
	if !strings.EqualFold(c.Query("format"), "geojson") {
		return c.JSON(EntranceList{Entrances: results})
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range results {
		f := geojson.NewFeature(orb.Point{r.Lon, r.Lat})
		f.Properties["stationName"] = r.StationName
		f.Properties["source"] = r.Source
		if r.Score > 0 {
			f.Properties["score"] = r.Score
		}
		fc.Append(f)
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		return errInternal(c, err.Error())
	}
	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(body)
}
