package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

func BenchmarkHealth(b *testing.B) {
	env := newTestEnv(b)
	h := env.srv.Handler()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			b.Fatalf("status = %d", rec.Code)
		}
	}
}

func BenchmarkListWorkItems(b *testing.B) {
	env := newTestEnv(b)
	manager := env.createUser(b, "Mia", models.RoleManager)
	token := env.login(b, manager)

	rec := env.do(b, http.MethodPost, "/api/projects", token, service.CreateProjectInput{Name: "Bench", ManagerID: manager.ID})
	if rec.Code != http.StatusCreated {
		b.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	var project models.Project
	decodeData(b, rec, &project)
	for i := 0; i < 50; i++ {
		rec = env.do(b, http.MethodPost, "/api/workitems", token, service.CreateWorkItemInput{Title: "Item", ProjectID: project.ID})
		if rec.Code != http.StatusCreated {
			b.Fatalf("create item: %d %s", rec.Code, rec.Body.String())
		}
	}

	h := env.srv.Handler()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/workitems?projectId="+project.ID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("status = %d", rec.Code)
		}
	}
}
