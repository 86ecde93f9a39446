package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

func setupProviderRouter(t *testing.T) (*gin.Engine, *[]string) {
	t.Helper()
	db := setupTestDB(t)
	alerts := services.NewAlertService(db, services.NewThreatRepository(db))
	var sent []string
	alerts.SetSender(func(url, message string) error {
		if url == "generic://fail.invalid/hook" {
			return errors.New("delivery failed")
		}
		sent = append(sent, message)
		return nil
	})
	h := NewNotificationProviderHandler(alerts)
	r := newRouter()
	r.GET("/notification-providers", h.List)
	r.POST("/notification-providers", h.Create)
	r.POST("/notification-providers/test", h.Test)
	r.DELETE("/notification-providers/:id", h.Delete)
	return r, &sent
}

func TestNotificationProviderHandler_CRUD(t *testing.T) {
	r, _ := setupProviderRouter(t)

	w := doJSON(t, r, http.MethodPost, "/notification-providers", map[string]interface{}{
		"name": "ops", "type": "generic", "url": "generic://alerts.example.com/hook", "enabled": true,
		"notify_brute_force": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.NotificationProvider
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)

	w = doJSON(t, r, http.MethodPost, "/notification-providers", map[string]interface{}{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/notification-providers", nil)
	var list []models.NotificationProvider
	decode(t, w, &list)
	assert.Len(t, list, 1)

	w = doJSON(t, r, http.MethodDelete, "/notification-providers/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodDelete, "/notification-providers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationProviderHandler_Test(t *testing.T) {
	r, sent := setupProviderRouter(t)

	w := doJSON(t, r, http.MethodPost, "/notification-providers/test", map[string]interface{}{
		"type": "generic", "url": "generic://alerts.example.com/hook",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, *sent, 1)
	assert.Contains(t, (*sent)[0], "Gatewatch")

	w = doJSON(t, r, http.MethodPost, "/notification-providers/test", map[string]interface{}{
		"type": "generic", "url": "generic://fail.invalid/hook",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
