// Copyright 2025 CertHub API Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func healthy(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} }

func TestManager_Readiness(t *testing.T) {
	manager := NewManager("certhub-api", "1.0.0", zap.NewNop())
	manager.AddChecker("cache", CheckerFunc(healthy))
	manager.AddChecker("qnet", CredentialChecker("qnet", false, true))

	result := manager.Readiness(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", result.Status)
	}
	if result.Service != "certhub-api" {
		t.Errorf("Expected service to be certhub-api, got %s", result.Service)
	}
	if len(result.Dependencies) != 2 {
		t.Fatalf("Expected 2 dependencies, got %d", len(result.Dependencies))
	}
	if result.Dependencies["cache"].Status != StatusHealthy {
		t.Errorf("Expected cache to be healthy, got %s", result.Dependencies["cache"].Status)
	}
	if result.Dependencies["qnet"].Error != "qnet API key is not configured" {
		t.Errorf("Unexpected qnet error: %q", result.Dependencies["qnet"].Error)
	}
}

func TestManager_ReadinessDegraded(t *testing.T) {
	manager := NewManager("certhub-api", "1.0.0", nil)
	manager.AddChecker("cache", CheckerFunc(healthy))
	manager.AddChecker("aladin", CredentialChecker("aladin", false, false))

	result := manager.Readiness(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("Expected status to be degraded, got %s", result.Status)
	}
}

func TestManager_ReadinessTimeout(t *testing.T) {
	manager := NewManager("certhub-api", "1.0.0", nil)
	manager.SetTimeout(20 * time.Millisecond)
	manager.AddChecker("slow", PingChecker("redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	result := manager.Readiness(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected timed out check to be unhealthy, got %s", result.Status)
	}
}

func TestPingChecker(t *testing.T) {
	ok := PingChecker("memory", func(context.Context) error { return nil }).Check(context.Background())
	if ok.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", ok.Status)
	}

	failed := PingChecker("redis", func(context.Context) error { return errors.New("connection refused") }).Check(context.Background())
	if failed.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", failed.Status)
	}
	if failed.Error != "redis ping failed: connection refused" {
		t.Errorf("Unexpected error: %q", failed.Error)
	}
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		qnetKey    bool
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness ignores dependencies", false, "/health", http.StatusOK, StatusHealthy},
		{"ready with key", true, "/ready", http.StatusOK, StatusHealthy},
		{"not ready without qnet key", false, "/ready", http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("certhub-api", "test", zap.NewNop())
			manager.AddChecker("qnet", CredentialChecker("qnet", tt.qnetKey, true))

			router := gin.New()
			router.GET("/health", manager.LivenessHandler())
			router.GET("/ready", manager.ReadinessHandler())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("Expected body status %s, got %s", tt.wantBody, body.Status)
			}
		})
	}
}
