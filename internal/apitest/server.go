// Package apitest runs an in-memory implementation of the task service's
// HTTP contract for tests.
package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tgienger/tareas/internal/models"
)

const (
	secret   = "apitest-secret"
	tokenTTL = time.Hour
)

// StatusSessionExpired is the non-standard status the service uses for an expired token
const StatusSessionExpired = 419

type user struct {
	name     string
	email    string
	password string
}

type storedTask struct {
	owner string
	task  models.Task
}

type failure struct {
	status int
	body   any
}

// Server is a fake task service
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	users    map[string]user
	tasks    []storedTask
	failures []failure
	hits     map[string]int
}

// New starts a fake service; it is closed when the test ends
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		users: make(map[string]user),
		hits:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /tasks", s.authed(s.handleList))
	mux.HandleFunc("POST /tasks", s.authed(s.handleCreate))
	mux.HandleFunc("PUT /tasks/{id}", s.authed(s.handleUpdate))
	mux.HandleFunc("DELETE /tasks/{id}", s.authed(s.handleDelete))

	s.srv = httptest.NewServer(http.StripPrefix("/api", s.record(mux)))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the API base URL
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// AddUser registers an account directly
func (s *Server) AddUser(name, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = user{name: name, email: email, password: password}
}

// Token issues a valid token for email
func (s *Server) Token(email string) string {
	token, err := issueToken(email, time.Now().Add(tokenTTL))
	if err != nil {
		panic(err)
	}
	return token
}

// ExpiredToken issues a token that expired an hour ago
func (s *Server) ExpiredToken(email string) string {
	token, err := issueToken(email, time.Now().Add(-time.Hour))
	if err != nil {
		panic(err)
	}
	return token
}

// AddTask stores a task for email and returns it with its assigned ID
func (s *Server) AddTask(email string, t models.Task) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = models.ID(uuid.NewString())
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	s.tasks = append(s.tasks, storedTask{owner: email, task: t})
	return t
}

// Tasks returns the tasks stored for email
func (s *Server) Tasks(email string) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, st := range s.tasks {
		if st.owner == email {
			out = append(out, st.task)
		}
	}
	return out
}

// FailNext makes the next request answer with status and a JSON body
func (s *Server) FailNext(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, body: body})
}

// Hits returns how many requests reached "METHOD /path"
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/tasks/") {
			route = r.Method + " /tasks/{id}"
		}

		s.mu.Lock()
		s.hits[route]++
		var f *failure
		if len(s.failures) > 0 {
			f = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeJSON(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, email string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token requerido"})
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if errors.Is(err, jwt.ErrTokenExpired) {
			writeJSON(w, StatusSessionExpired, map[string]string{"message": "Sesion expirada"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token invalido"})
			return
		}
		next(w, r, claims.Subject)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"nombre"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "JSON invalido"})
		return
	}

	var errs []map[string]string
	if strings.TrimSpace(req.Name) == "" {
		errs = append(errs, map[string]string{"msg": "nombre requerido"})
	}
	if !strings.Contains(req.Email, "@") {
		errs = append(errs, map[string]string{"msg": "email invalido"})
	}
	if len(req.Password) < 6 {
		errs = append(errs, map[string]string{"msg": "password debe tener al menos 6 caracteres"})
	}
	s.mu.Lock()
	if _, exists := s.users[req.Email]; exists {
		errs = append(errs, map[string]string{"msg": "email ya registrado"})
	}
	s.mu.Unlock()
	if len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
		return
	}

	s.AddUser(req.Name, req.Email, req.Password)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Usuario registrado"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "JSON invalido"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || u.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Credenciales incorrectas"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.Token(u.email)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, email string) {
	tasks := s.Tasks(email)
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Title       string      `json:"titulo"`
		Description string      `json:"descripcion"`
		DueDate     models.Date `json:"fechaLimite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "JSON invalido"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": []map[string]string{{"msg": "titulo requerido"}},
		})
		return
	}

	task := s.AddTask(email, models.Task{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Status:      models.StatusPending,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Tarea creada", "task": task})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, email string) {
	var update models.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "JSON invalido"})
		return
	}
	if update.Status != nil && !update.Status.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": []map[string]string{{"msg": "estado invalido"}},
		})
		return
	}

	s.withTask(w, r.PathValue("id"), email, func(i int) {
		t := &s.tasks[i].task
		if update.Title != nil {
			t.Title = *update.Title
		}
		if update.Description != nil {
			t.Description = *update.Description
		}
		if update.DueDate != nil {
			t.DueDate = *update.DueDate
		}
		if update.Status != nil {
			t.Status = *update.Status
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Tarea actualizada"})
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, email string) {
	s.withTask(w, r.PathValue("id"), email, func(i int) {
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Tarea eliminada"})
	})
}

// withTask runs fn with the index of task id under the lock, answering 404
// when it does not exist and 403 when it belongs to someone else
func (s *Server) withTask(w http.ResponseWriter, id, email string, fn func(i int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.tasks {
		if string(st.task.ID) != id {
			continue
		}
		if st.owner != email {
			writeJSON(w, http.StatusForbidden, "No tienes permiso para modificar esta tarea")
			return
		}
		fn(i)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("Tarea %s no encontrada", id)})
}

func issueToken(email string, expires time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(expires.Add(-tokenTTL)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}
