package handler

import (
	"net/http"
	"roadwatch/internal/dto"
	"roadwatch/internal/logger"
	"roadwatch/internal/model"
	"roadwatch/internal/repository"
)

// GetRunsHandler returns a filtered, paginated page of the run history.
func GetRunsHandler(logger *logger.Logger, runRepo repository.RunRepository,
	objectRepo repository.ObjectRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 20)

		filter := &model.RunFilter{
			Task:   q.Get("task"),
			Source: q.Get("source"),
			Object: q.Get("object"),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		runs, err := runRepo.GetAll(filter)
		if err != nil {
			writeError(w, logger, http.StatusInternalServerError, "Error querying runs from database", err)
			return
		}

		totalCount, err := runRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting runs: %v", err)
			totalCount = len(runs)
		}

		infos := make([]dto.RunInfo, 0, len(runs))
		for _, run := range runs {
			// Get label counts for this run
			objects := []model.RunObject{}
			if objectRepo != nil {
				objects, err = objectRepo.GetByRunID(run.ID)
				if err != nil {
					logger.Error("Error getting objects for run %d: %v", run.ID, err)
				}
			}
			if objects == nil {
				objects = []model.RunObject{}
			}

			infos = append(infos, dto.RunInfo{
				ID:         run.ID,
				Task:       run.Task,
				Source:     run.Source,
				Input:      run.Input,
				Status:     run.Status,
				Error:      run.Error,
				Frames:     run.Frames,
				StartedAt:  run.StartedAt,
				FinishedAt: run.FinishedAt,
				Objects:    objects,
			})
		}

		names := []string{}
		if objectRepo != nil {
			if names, err = objectRepo.GetAllObjectNames(); err != nil {
				logger.Error("Error listing object names: %v", err)
			}
		}
		if names == nil {
			names = []string{}
		}

		writeJSON(w, logger, http.StatusOK, dto.RunsData{
			Runs:        infos,
			Objects:     names,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// ClearRunsHandler deletes the whole run history.
func ClearRunsHandler(logger *logger.Logger, runRepo repository.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, logger, http.MethodPost) {
			return
		}
		if err := runRepo.DeleteAll(); err != nil {
			writeError(w, logger, http.StatusInternalServerError, "Error clearing run history", err)
			return
		}

		logger.Info("Run history cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}
