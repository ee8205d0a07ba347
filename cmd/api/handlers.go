package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/pkg/api"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/middleware"
)

// BulkConfirmRunner runs bulk confirmations asynchronously
type BulkConfirmRunner interface {
	Start(ctx context.Context, positionIDs []string) (string, error)
	Result(ctx context.Context, workflowID string) (*application.BulkConfirmResultDTO, bool, error)
}

// registerRoutes mounts the disposition API. runner may be nil when Temporal
// is disabled. idempotent guards the non-idempotent POST routes.
func registerRoutes(router *gin.Engine, service *application.DispositionApplicationService, runner BulkConfirmRunner, idempotent gin.HandlerFunc, logger *logging.Logger) {
	v1 := router.Group("/api/v1")

	v1.GET("/disposition", getDispositionViewHandler(service, logger))

	positions := v1.Group("/positions")
	{
		positions.POST("", idempotent, createPositionHandler(service, logger))
		positions.POST("/bulk-confirm", idempotent, bulkConfirmHandler(service, logger))
		positions.POST("/bulk-confirm/async", idempotent, startBulkConfirmHandler(runner, logger))
		positions.GET("/bulk-confirm/async/:workflowId", getBulkConfirmHandler(runner, logger))
		positions.GET("/:positionId", getPositionHandler(service, logger))
		positions.PATCH("/:positionId", updatePositionHandler(service, logger))
		positions.DELETE("/:positionId", deletePositionHandler(service, logger))
		positions.POST("/:positionId/loads", assignLoadHandler(service, logger))
		positions.DELETE("/:positionId/loads/:loadId", unassignLoadHandler(service, logger))
		positions.POST("/:positionId/confirm", confirmPositionHandler(service, logger))
	}

	loads := v1.Group("/loads")
	{
		loads.PUT("/:loadId", upsertLoadHandler(service, logger))
		loads.GET("/:loadId", getLoadHandler(service, logger))
	}
}

func getDispositionViewHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var query struct {
			Direction string `form:"direction" binding:"required"`
		}
		if appErr := api.BindQueryAndValidate(c, &query); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{"disposition.direction": query.Direction})

		view, err := service.GetDispositionView(c.Request.Context(), application.GetDispositionViewQuery{Direction: query.Direction})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, view)
	}
}

type positionAttributesRequest struct {
	Reference        *string    `json:"reference" binding:"omitempty,max=128,safe_string"`
	VehicleRef       *string    `json:"vehicleRef" binding:"omitempty,max=128,safe_string"`
	RouteRef         *string    `json:"routeRef" binding:"omitempty,max=128,safe_string"`
	PlannedDeparture *time.Time `json:"plannedDeparture"`
	Notes            *string    `json:"notes" binding:"omitempty,max=2000,safe_string"`
}

func createPositionHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			Type string `json:"type" binding:"required"`
			positionAttributesRequest
		}
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		position, err := service.CreatePosition(c.Request.Context(), application.CreatePositionCommand{
			Type:             req.Type,
			Reference:        req.Reference,
			VehicleRef:       req.VehicleRef,
			RouteRef:         req.RouteRef,
			PlannedDeparture: req.PlannedDeparture,
			Notes:            req.Notes,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{"position.id": position.PositionID})
		c.JSON(http.StatusCreated, position)
	}
}

func getPositionHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		positionID := c.Param("positionId")
		middleware.AddSpanAttributes(c, map[string]string{"position.id": positionID})

		position, err := service.GetPosition(c.Request.Context(), application.GetPositionQuery{PositionID: positionID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, position)
	}
}

func updatePositionHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		positionID := c.Param("positionId")
		middleware.AddSpanAttributes(c, map[string]string{"position.id": positionID})

		var req positionAttributesRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		position, err := service.UpdatePosition(c.Request.Context(), application.UpdatePositionCommand{
			PositionID:       positionID,
			Reference:        req.Reference,
			VehicleRef:       req.VehicleRef,
			RouteRef:         req.RouteRef,
			PlannedDeparture: req.PlannedDeparture,
			Notes:            req.Notes,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, position)
	}
}

func deletePositionHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		positionID := c.Param("positionId")
		middleware.AddSpanAttributes(c, map[string]string{"position.id": positionID})

		if err := service.DeletePosition(c.Request.Context(), application.DeletePositionCommand{PositionID: positionID}); err != nil {
			responder.RespondWithError(err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func assignLoadHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		positionID := c.Param("positionId")

		var req struct {
			LoadID string `json:"loadId" binding:"required,load_id"`
		}
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]string{
			"position.id": positionID,
			"load.id":     req.LoadID,
		})

		position, err := service.AssignLoad(c.Request.Context(), application.AssignLoadCommand{
			PositionID: positionID,
			LoadID:     req.LoadID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, position)
	}
}

func unassignLoadHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		cmd := application.UnassignLoadCommand{
			PositionID: c.Param("positionId"),
			LoadID:     c.Param("loadId"),
		}
		middleware.AddSpanAttributes(c, map[string]string{
			"position.id": cmd.PositionID,
			"load.id":     cmd.LoadID,
		})

		if err := service.UnassignLoad(c.Request.Context(), cmd); err != nil {
			responder.RespondWithError(err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func confirmPositionHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		positionID := c.Param("positionId")
		middleware.AddSpanAttributes(c, map[string]string{"position.id": positionID})

		position, err := service.ConfirmPosition(c.Request.Context(), application.ConfirmPositionCommand{PositionID: positionID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, position)
	}
}

type bulkConfirmRequest struct {
	PositionIDs []string `json:"positionIds" binding:"required"`
}

func bulkConfirmHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req bulkConfirmRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result := service.BulkConfirmPositions(c.Request.Context(), application.BulkConfirmPositionsCommand{
			PositionIDs: req.PositionIDs,
		})
		c.JSON(http.StatusOK, result)
	}
}

func startBulkConfirmHandler(runner BulkConfirmRunner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		if runner == nil {
			responder.RespondServiceUnavailable("temporal")
			return
		}

		var req bulkConfirmRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		workflowID, err := runner.Start(c.Request.Context(), req.PositionIDs)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		logger.WorkflowStart(c.Request.Context(), "BulkConfirmWorkflow", workflowID)
		c.JSON(http.StatusAccepted, gin.H{"workflowId": workflowID})
	}
}

func getBulkConfirmHandler(runner BulkConfirmRunner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		if runner == nil {
			responder.RespondServiceUnavailable("temporal")
			return
		}

		workflowID := c.Param("workflowId")
		result, running, err := runner.Result(c.Request.Context(), workflowID)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		if running {
			c.JSON(http.StatusAccepted, gin.H{"workflowId": workflowID, "status": "running"})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

type loadItemRequest struct {
	ItemID       string  `json:"itemId" binding:"required,safe_string"`
	GrossWeight  float64 `json:"grossWeight" binding:"gte=0"`
	Width        float64 `json:"width" binding:"gte=0"`
	Height       float64 `json:"height" binding:"gte=0"`
	Length       float64 `json:"length" binding:"gte=0"`
	Volume       float64 `json:"volume" binding:"gte=0"`
	Lademetre    float64 `json:"lademetre" binding:"gte=0"`
	PieceCount   int     `json:"pieceCount" binding:"gte=0"`
	PackageCount int     `json:"packageCount" binding:"gte=0"`
	Hazardous    bool    `json:"hazardous"`
	UNNumber     string  `json:"unNumber" binding:"omitempty,max=16"`
}

func upsertLoadHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		loadID := c.Param("loadId")
		middleware.AddSpanAttributes(c, map[string]string{"load.id": loadID})

		var req struct {
			Direction        string            `json:"direction" binding:"required,direction"`
			CargoDescription string            `json:"cargoDescription" binding:"max=512,safe_string"`
			Status           string            `json:"status" binding:"max=64"`
			Reference        string            `json:"reference" binding:"max=128,safe_string"`
			Items            []loadItemRequest `json:"items" binding:"dive"`
		}
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		items := make([]application.LoadItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, application.LoadItemInput(item))
		}

		load, err := service.UpsertLoad(c.Request.Context(), application.UpsertLoadCommand{
			LoadID:           loadID,
			Direction:        req.Direction,
			CargoDescription: req.CargoDescription,
			Status:           req.Status,
			Reference:        req.Reference,
			Items:            items,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, load)
	}
}

func getLoadHandler(service *application.DispositionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		loadID := c.Param("loadId")
		middleware.AddSpanAttributes(c, map[string]string{"load.id": loadID})

		load, err := service.GetLoad(c.Request.Context(), application.GetLoadQuery{LoadID: loadID})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, load)
	}
}
