package http

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// toGraph converts a value to the map form graphql-go's default resolver
// walks by json tag. Embedded structs are flattened on the way.
func toGraph(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// buildSchema creates the read-only GraphQL schema over trips and routes.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	locationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Location",
		Fields: graphql.Fields{
			"point":       &graphql.Field{Type: geoPointType},
			"speed_kmh":   &graphql.Field{Type: graphql.Float},
			"heading":     &graphql.Field{Type: graphql.Float},
			"recorded_at": &graphql.Field{Type: graphql.String},
		},
	})

	stageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stage",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"route_id": &graphql.Field{Type: graphql.String},
			"name":     &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
			"sequence": &graphql.Field{Type: graphql.Int},
		},
	})

	etaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "StageETA",
		Fields: graphql.Fields{
			"stage_index":          &graphql.Field{Type: graphql.Int},
			"stage_name":           &graphql.Field{Type: graphql.String},
			"eta":                  &graphql.Field{Type: graphql.String},
			"minutes":              &graphql.Field{Type: graphql.Int},
			"distance_remaining_m": &graphql.Field{Type: graphql.Float},
		},
	})

	incidentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Incident",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"type":        &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"reported_at": &graphql.Field{Type: graphql.String},
			"reported_by": &graphql.Field{Type: graphql.String},
		},
	})

	tripType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trip",
		Fields: graphql.Fields{
			"id":                  &graphql.Field{Type: graphql.String},
			"vehicle_id":          &graphql.Field{Type: graphql.String},
			"route_id":            &graphql.Field{Type: graphql.String},
			"driver_id":           &graphql.Field{Type: graphql.String},
			"sacco_id":            &graphql.Field{Type: graphql.String},
			"status":              &graphql.Field{Type: graphql.String},
			"version":             &graphql.Field{Type: graphql.Int},
			"current_stage_index": &graphql.Field{Type: graphql.Int},
			"off_route":           &graphql.Field{Type: graphql.Boolean},
			"location":            &graphql.Field{Type: locationType},
			"capacity":            &graphql.Field{Type: graphql.Int},
			"occupancy":           &graphql.Field{Type: graphql.Int},
			"crowd_level":         &graphql.Field{Type: graphql.String},
			"etas":                &graphql.Field{Type: graphql.NewList(etaType)},
			"incidents":           &graphql.Field{Type: graphql.NewList(incidentType)},
			"updated_at":          &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"trip": &graphql.Field{
				Type:        tripType,
				Description: "Latest snapshot of a trip",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					snap, err := deps.Trips.GetTrip(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return toGraph(snap)
				},
			},
			"activeTrips": &graphql.Field{
				Type:        graphql.NewList(tripType),
				Description: "Open trips, optionally on one route",
				Args: graphql.FieldConfigArgument{
					"route_id": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					routeID, _ := p.Args["route_id"].(string)
					trips, err := deps.Trips.GetActiveTrips(p.Context, domain.TripFilter{RouteID: routeID})
					if err != nil {
						return nil, err
					}
					return toGraph(trips)
				},
			},
			"routeStages": &graphql.Field{
				Type:        graphql.NewList(stageType),
				Description: "Ordered stages of a route",
				Args: graphql.FieldConfigArgument{
					"route_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stages, err := deps.Routes.GetStages(p.Context, p.Args["route_id"].(string))
					if err != nil {
						return nil, err
					}
					return toGraph(stages)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		start := time.Now()
		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		if result.HasErrors() {
			LoggerFromCtx(c.UserContext()).Debug("graphql errors",
				"operation", req.OperationName, "errors", len(result.Errors), "took", time.Since(start))
		}

		return c.JSON(result)
	}
}
