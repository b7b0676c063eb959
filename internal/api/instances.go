package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/torfleet/internal/api/models"
	"github.com/smazurov/torfleet/internal/fleet"
)

func (s *Server) registerInstanceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "start-instances",
		Method:        http.MethodPost,
		Path:          "/api/instances",
		Summary:       "Start Instances",
		Description:   "Stop leftover daemons, then start count fresh instances. Returns 202 once queued, or 200 with the batch result when wait=true.",
		Tags:          []string{"instances"},
		DefaultStatus: http.StatusAccepted,
		Security:      withAuth(),
		Errors:        []int{400, 401, 409, 503},
	}, func(ctx context.Context, input *models.StartInstancesRequest) (*models.BatchResponse, error) {
		path, countText := s.withDefaults(input.Body.ExecutablePath, input.Body.Count)

		results, err := s.fleet.StartInstances(path, countText)
		if err != nil {
			return nil, fleetError(err)
		}
		requested, _ := strconv.Atoi(strings.TrimSpace(countText))

		if !input.Wait {
			go s.logBatch(results)
			return &models.BatchResponse{
				Status: http.StatusAccepted,
				Body: models.BatchData{
					State:     string(s.fleet.State()),
					Requested: requested,
				},
			}, nil
		}

		select {
		case res := <-results:
			return &models.BatchResponse{
				Status: http.StatusOK,
				Body: models.BatchData{
					State:     string(s.fleet.State()),
					Requested: res.Requested,
					Launched:  res.Launched,
					Survivors: res.Survivors,
					Endpoints: res.Endpoints,
					Errors:    errorStrings(res.Errors),
				},
			}, nil
		case <-ctx.Done():
			// The batch keeps running; its result is logged.
			go s.logBatch(results)
			return nil, huma.Error503ServiceUnavailable("Request ended before the batch finished", ctx.Err())
		}
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-instances",
		Method:      http.MethodGet,
		Path:        "/api/instances",
		Summary:     "List Instances",
		Description: "Supervisor state, live endpoints and every registered instance",
		Tags:        []string{"instances"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.InstanceListResponse, error) {
		infos := s.fleet.Instances()
		list := make([]models.InstanceData, 0, len(infos))
		for _, info := range infos {
			item := instanceData(info.Spec, info.Endpoint)
			item.PID = info.PID
			item.Alive = info.Alive
			item.Bootstrap = info.Bootstrap
			if !info.StartedAt.IsZero() {
				item.StartedAt = info.StartedAt.Format(time.RFC3339)
			}
			list = append(list, item)
		}

		endpoints := s.fleet.Endpoints()
		if endpoints == nil {
			endpoints = []string{}
		}
		return &models.InstanceListResponse{
			Body: models.InstanceListData{
				State:     string(s.fleet.State()),
				Running:   s.fleet.Running(),
				Endpoints: endpoints,
				Instances: list,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-instances",
		Method:      http.MethodDelete,
		Path:        "/api/instances",
		Summary:     "Stop All Instances",
		Description: "Terminate every process named like the daemon and forget all instances. Safe to repeat.",
		Tags:        []string{"instances"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.StopResponse, error) {
		res, err := s.fleet.StopAllInstances(ctx)
		if err != nil {
			return nil, fleetError(err)
		}
		return &models.StopResponse{
			Body: models.StopData{
				Found:  res.Found,
				Killed: res.Killed,
				Failed: len(res.Errors),
				Errors: errorStrings(res.Errors),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "plan-instances",
		Method:      http.MethodGet,
		Path:        "/api/instances/plan",
		Summary:     "Plan Instances",
		Description: "Preview ports and data directories for count instances without starting anything",
		Tags:        []string{"instances"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.PlanRequest) (*models.PlanResponse, error) {
		path, _ := s.withDefaults(input.ExecutablePath, "")
		alloc := s.fleet.Allocator(path)
		limit := alloc.MaxInstances()
		if input.Count < 1 || input.Count > limit {
			return nil, huma.Error400BadRequest("count must be between 1 and " + strconv.Itoa(limit))
		}

		plan := alloc.Plan(input.Count)
		list := make([]models.InstanceData, 0, len(plan))
		for _, spec := range plan {
			item := instanceData(spec, spec.Endpoint(s.fleet.Scheme()))
			item.Bootstrap = -1
			list = append(list, item)
		}
		return &models.PlanResponse{
			Body: models.PlanData{MaxInstances: limit, Instances: list},
		}, nil
	})
}

// withDefaults fills an empty path or count from the configured defaults.
func (s *Server) withDefaults(path, countText string) (string, string) {
	if s.options.Defaults == nil {
		return path, countText
	}
	d := s.options.Defaults.Get()
	if strings.TrimSpace(path) == "" {
		path = d.Path
	}
	if strings.TrimSpace(countText) == "" && d.Count > 0 {
		countText = strconv.Itoa(d.Count)
	}
	return path, countText
}

func (s *Server) logBatch(results <-chan fleet.BatchResult) {
	res, ok := <-results
	if !ok {
		return
	}
	s.logger.Info("Start batch completed",
		"requested", res.Requested,
		"launched", res.Launched,
		"survivors", res.Survivors,
		"errors", len(res.Errors))
}

func instanceData(spec fleet.InstanceSpec, endpoint string) models.InstanceData {
	return models.InstanceData{
		Index:         spec.Index,
		SOCKSPort:     spec.SOCKSPort,
		ControlPort:   spec.ControlPort,
		DataDirectory: spec.DataDirectory,
		Endpoint:      endpoint,
	}
}
