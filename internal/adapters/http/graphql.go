package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

// regionArgs are the optional bounding-box arguments shared by entrance queries.
var regionArgs = graphql.FieldConfigArgument{
	"latMin": &graphql.ArgumentConfig{Type: graphql.Float},
	"latMax": &graphql.ArgumentConfig{Type: graphql.Float},
	"lonMin": &graphql.ArgumentConfig{Type: graphql.Float},
	"lonMax": &graphql.ArgumentConfig{Type: graphql.Float},
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	boxType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BoundingBox",
		Fields: graphql.Fields{
			"lat_min": &graphql.Field{Type: graphql.Float},
			"lat_max": &graphql.Field{Type: graphql.Float},
			"lon_min": &graphql.Field{Type: graphql.Float},
			"lon_max": &graphql.Field{Type: graphql.Float},
		},
	})

	sourceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Source",
		Fields: graphql.Fields{
			"handle": &graphql.Field{Type: graphql.String},
			"label":  &graphql.Field{Type: graphql.String},
			"box":    &graphql.Field{Type: boxType},
		},
	})

	entranceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Entrance",
		Fields: graphql.Fields{
			"stationName": &graphql.Field{Type: graphql.String},
			"source":      &graphql.Field{Type: graphql.String},
			"lat":         &graphql.Field{Type: graphql.Float},
			"lon":         &graphql.Field{Type: graphql.Float},
			"score":       &graphql.Field{Type: graphql.Int},
		},
	})

	entrancesArgs := graphql.FieldConfigArgument{
		"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}
	sourceEntrancesArgs := graphql.FieldConfigArgument{
		"source": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}
	for k, v := range regionArgs {
		entrancesArgs[k] = v
		sourceEntrancesArgs[k] = v
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"entrances": &graphql.Field{
				Type:        graphql.NewList(entranceType),
				Description: "Entrances whose station name fuzzily matches query, optionally inside a region",
				Args:        entrancesArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := p.Args["query"].(string)
					return deps.Entrances.Search(p.Context, q, regionFromArgs(p.Args))
				},
			},
			"sources": &graphql.Field{
				Type:        graphql.NewList(sourceType),
				Description: "List all entrance sources",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Sources.List(p.Context)
				},
			},
			"sourceEntrances": &graphql.Field{
				Type:        graphql.NewList(entranceType),
				Description: "Every entrance of one source, defaulting to the source's coverage box",
				Args:        sourceEntrancesArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					src := p.Args["source"].(string)
					return deps.Entrances.ListAll(p.Context, src, regionFromArgs(p.Args))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func regionFromArgs(args map[string]interface{}) *domain.BoundingBox {
	get := func(name string) *float64 {
		if v, ok := args[name].(float64); ok {
			return &v
		}
		return nil
	}
	latMin, latMax, lonMin, lonMax := get("latMin"), get("latMax"), get("lonMin"), get("lonMax")
	if latMin == nil && latMax == nil && lonMin == nil && lonMax == nil {
		return nil
	}
	box := domain.BoxFromBounds(latMin, latMax, lonMin, lonMax)
	return &box
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
