package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/joshp123/senso4s/internal/core"
	"github.com/joshp123/senso4s/internal/discovery"
	"github.com/joshp123/senso4s/senso4s"
)

// Refresher triggers a full device update outside the regular poll
// interval, right after adoption.
type Refresher interface {
	Refresh(ctx context.Context, entry core.Entry) error
}

// Unpublisher retracts a removed device from downstream surfaces.
type Unpublisher interface {
	Unpublish(entry core.Entry) error
}

// API holds the handler dependencies.
type API struct {
	Registry    *core.Registry
	Store       *core.Store
	Discoverer  *discovery.Discoverer
	Refresher   Refresher
	Unpublisher Unpublisher
}

type deviceResponse struct {
	core.Entry
	Reading   *senso4s.Reading `json:"reading,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

func (a *API) discover(ctx *gin.Context) {
	timeout := discovery.DefaultTimeout
	if raw := ctx.Query("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout"})
			return
		}
		timeout = parsed
	}

	candidates, err := a.Discoverer.Discover(ctx.Request.Context(), timeout, a.Registry.Addresses())
	if errors.Is(err, discovery.ErrNoDevicesFound) {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error": "no_devices_found",
			"hint":  "move closer to the device and retry",
		})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (a *API) listDevices(ctx *gin.Context) {
	entries := a.Registry.List()
	devices := make([]deviceResponse, 0, len(entries))
	for _, entry := range entries {
		devices = append(devices, a.deviceResponse(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"devices": devices})
}

type adoptRequest struct {
	Address string `json:"address" binding:"required"`
	Area    string `json:"area"`
}

func (a *API) adoptDevice(ctx *gin.Context) {
	var req adoptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := core.Entry{Address: req.Address, Area: req.Area}
	if candidate, ok := a.Discoverer.Lookup(entry.Address); ok {
		entry.Name = candidate.Name
		entry.Model = string(candidate.Device.Model)
	}

	if err := a.Registry.Adopt(entry); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrAlreadyConfigured) {
			status = http.StatusConflict
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	entry, _ = a.Registry.Get(entry.Address)
	if a.Refresher != nil {
		go func() {
			if err := a.Refresher.Refresh(context.Background(), entry); err != nil {
				glog.Warningf("initial refresh %s: %v", entry.Address, err)
			}
		}()
	}

	ctx.JSON(http.StatusCreated, a.deviceResponse(entry))
}

func (a *API) getDevice(ctx *gin.Context) {
	entry, ok := a.Registry.Get(ctx.Param("address"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	ctx.JSON(http.StatusOK, a.deviceResponse(entry))
}

func (a *API) removeDevice(ctx *gin.Context) {
	address := ctx.Param("address")
	entry, ok := a.Registry.Get(address)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	if err := a.Registry.Remove(address); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.Store.Forget(address)
	if a.Unpublisher != nil {
		if err := a.Unpublisher.Unpublish(entry); err != nil {
			glog.Warningf("unpublish %s: %v", entry.Address, err)
		}
	}
	ctx.Status(http.StatusNoContent)
}

type entityState struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	DeviceClass string `json:"device_class,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Diagnostic  bool   `json:"diagnostic,omitempty"`
	Value       any    `json:"value"`
}

func (a *API) deviceEntities(ctx *gin.Context) {
	entry, ok := a.Registry.Get(ctx.Param("address"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	var reading senso4s.Reading
	if snap, ok := a.Store.Get(entry.Address); ok && snap.Device != nil {
		reading = snap.Device.Reading
	}

	entities := make([]entityState, 0, len(core.EntityDescriptions))
	for _, desc := range core.EntityDescriptions {
		entities = append(entities, entityState{
			Key:         desc.Key,
			Name:        desc.Name,
			DeviceClass: desc.DeviceClass,
			Unit:        desc.Unit,
			Icon:        desc.Icon,
			Diagnostic:  desc.Diagnostic,
			Value:       desc.Value(reading),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"address": entry.Address, "entities": entities})
}

func (a *API) deviceHistory(ctx *gin.Context) {
	entry, ok := a.Registry.Get(ctx.Param("address"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	history := []senso4s.HistoryEntry{}
	if snap, ok := a.Store.Get(entry.Address); ok && snap.Device != nil {
		history = snap.Device.History
	}
	ctx.JSON(http.StatusOK, gin.H{"address": entry.Address, "history": history})
}

func (a *API) deviceResponse(entry core.Entry) deviceResponse {
	resp := deviceResponse{Entry: entry}
	if snap, ok := a.Store.Get(entry.Address); ok {
		if snap.Device != nil {
			reading := snap.Device.Reading
			resp.Reading = &reading
		}
		if !snap.UpdatedAt.IsZero() {
			updated := snap.UpdatedAt
			resp.UpdatedAt = &updated
		}
		resp.LastError = snap.LastError
	}
	return resp
}
