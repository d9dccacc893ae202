package server_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/auth"
	"github.com/MarcoPoloResearchLab/healthylife/internal/database"
	"github.com/MarcoPoloResearchLab/healthylife/internal/ids"
	"github.com/MarcoPoloResearchLab/healthylife/internal/metrics"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/MarcoPoloResearchLab/healthylife/internal/progress"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"github.com/MarcoPoloResearchLab/healthylife/internal/server"
	"github.com/MarcoPoloResearchLab/healthylife/internal/streak"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	sessionSigningSecret = "flow-secret"
	sessionCookieName    = "healthylife_session"
	jsonContentType      = "application/json"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Token   string          `json:"token"`
	Rutina  json.RawMessage `json:"rutina"`
	Rutinas []struct {
		ID          string          `json:"_id"`
		Name        string          `json:"nombre"`
		Exercises   json.RawMessage `json:"ejercicios"`
		Completed   bool            `json:"completada"`
		CompletedAt *string         `json:"fecha_completada"`
	} `json:"rutinas"`
	RutinaID string `json:"rutina_id"`
	NotaID   string `json:"nota_id"`
	Notas    []struct {
		ID       string `json:"_id"`
		Title    string `json:"titulo"`
		Category string `json:"categoria"`
	} `json:"notas"`
	Perfil struct {
		Name  string   `json:"nombre"`
		Tags  []string `json:"etiquetas"`
		Stats struct {
			TotalRoutines     int64 `json:"total_rutinas"`
			CompletedRoutines int64 `json:"rutinas_completadas"`
			TotalNotes        int64 `json:"total_notas"`
			CurrentStreak     int   `json:"racha_actual"`
			BestStreak        int   `json:"racha_maxima"`
		} `json:"estadisticas"`
	} `json:"perfil"`
	Racha struct {
		CurrentStreak int      `json:"diasConsecutivos"`
		BestStreak    int      `json:"recordPersonal"`
		CompletedDays []string `json:"diasCompletados"`
		LastDay       *string  `json:"fechaUltimoDia"`
	} `json:"racha"`
}

type testStack struct {
	server   *httptest.Server
	client   *http.Client
	database *gorm.DB
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	return newTestStackWithOrigins(t, nil)
}

func newTestStackWithOrigins(t *testing.T, allowedOrigins []string) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_flow_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	idProvider := ids.NewUUIDProvider()
	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	routineService, err := routines.NewService(routines.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("routines service: %v", err)
	}
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	recorder := metrics.NewRecorder(false)
	progressService, err := progress.NewService(progress.ServiceConfig{
		Users:      userService,
		Routines:   routineService,
		Notes:      noteService,
		Calculator: streak.NewCalculator(),
		Observe:    recorder.ObserveStreak,
	})
	if err != nil {
		t.Fatalf("progress service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(sessionSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(sessionSigningSecret), CookieName: sessionCookieName})
	if err != nil {
		t.Fatalf("session validator: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:          userService,
		Routines:       routineService,
		Notes:          noteService,
		Progress:       progressService,
		Tokens:         issuer,
		Sessions:       validator,
		Metrics:        recorder,
		Logger:         zap.NewNop(),
		AllowedOrigins: allowedOrigins,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testStack{server: testServer, client: &http.Client{Jar: jar}, database: db}
}

func (s *testStack) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	response, err := s.client.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	var payload envelope
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return response.StatusCode, payload
}

func (s *testStack) register(t *testing.T, name, email string) envelope {
	t.Helper()
	status, payload := s.do(t, http.MethodPost, "/register", map[string]string{
		"nombre": name, "email": email, "password": "clave-segura",
	})
	if status != http.StatusOK || !payload.Success {
		t.Fatalf("register failed: %d %+v", status, payload)
	}
	return payload
}

func TestRoutineStreakFlow(t *testing.T) {
	stack := newTestStack(t)
	stack.register(t, "Ana", "ana@example.com")

	status, created := stack.do(t, http.MethodPost, "/rutina/guardar", map[string]any{
		"nombre":     "Piernas",
		"tipo":       "fuerza",
		"duracion":   "45",
		"ejercicios": []map[string]any{{"nombre": "sentadillas", "series": 3}},
	})
	if status != http.StatusOK || created.RutinaID == "" {
		t.Fatalf("create routine failed: %d %+v", status, created)
	}

	status, history := stack.do(t, http.MethodGet, "/historial-rutinas-data", nil)
	if status != http.StatusOK || len(history.Rutinas) != 1 || history.Rutinas[0].Completed {
		t.Fatalf("unexpected history: %d %+v", status, history)
	}

	status, streakBefore := stack.do(t, http.MethodGet, "/racha/datos", nil)
	if status != http.StatusOK || streakBefore.Racha.CurrentStreak != 0 || streakBefore.Racha.LastDay != nil {
		t.Fatalf("unexpected empty streak: %d %+v", status, streakBefore.Racha)
	}
	if _, marked := stack.do(t, http.MethodPost, "/racha/marcar-dia", nil); marked.Success {
		t.Fatalf("expected day to be unmarked before completing a routine")
	}

	status, completed := stack.do(t, http.MethodPost, "/rutina/completar/"+created.RutinaID, nil)
	if status != http.StatusOK || !completed.Success {
		t.Fatalf("complete failed: %d %+v", status, completed)
	}

	_, streakAfter := stack.do(t, http.MethodGet, "/racha/datos", nil)
	today := streak.DayOf(time.Now(), time.UTC).Key()
	if streakAfter.Racha.CurrentStreak != 1 || streakAfter.Racha.BestStreak != 1 {
		t.Fatalf("unexpected streak after completion: %+v", streakAfter.Racha)
	}
	if len(streakAfter.Racha.CompletedDays) != 1 || streakAfter.Racha.CompletedDays[0] != today {
		t.Fatalf("expected today's key %q, got %v", today, streakAfter.Racha.CompletedDays)
	}
	if _, marked := stack.do(t, http.MethodPost, "/racha/marcar-dia", nil); !marked.Success {
		t.Fatalf("expected day to be marked after completion")
	}

	_, profile := stack.do(t, http.MethodGet, "/perfil/datos", nil)
	stats := profile.Perfil.Stats
	if stats.TotalRoutines != 1 || stats.CompletedRoutines != 1 || stats.CurrentStreak != 1 || stats.BestStreak != 1 {
		t.Fatalf("unexpected profile stats %+v", stats)
	}

	status, deleted := stack.do(t, http.MethodPost, "/historial/eliminar/"+created.RutinaID, nil)
	if status != http.StatusOK || !deleted.Success {
		t.Fatalf("delete failed: %d %+v", status, deleted)
	}
	_, streakCleared := stack.do(t, http.MethodGet, "/racha/datos", nil)
	if streakCleared.Racha.CurrentStreak != 0 {
		t.Fatalf("expected deleting the routine to drop its completions, got %+v", streakCleared.Racha)
	}

	status, missing := stack.do(t, http.MethodPost, "/rutina/completar/"+created.RutinaID, nil)
	if status != http.StatusNotFound || missing.Message != "Rutina no encontrada" || missing.Code != "routines.complete.not_found" {
		t.Fatalf("expected not found envelope, got %d %+v", status, missing)
	}
}

func TestNotesAndProfileFlow(t *testing.T) {
	stack := newTestStack(t)
	stack.register(t, "Luis", "luis@example.com")

	status, invalid := stack.do(t, http.MethodPost, "/notas/crear", map[string]string{"descripcion": "sin título"})
	if status != http.StatusBadRequest || invalid.Message != "El título es obligatorio" {
		t.Fatalf("expected missing title rejection, got %d %+v", status, invalid)
	}

	_, created := stack.do(t, http.MethodPost, "/notas/crear", map[string]string{"titulo": "Hidratación", "descripcion": "2 litros"})
	if created.NotaID == "" {
		t.Fatalf("expected note id, got %+v", created)
	}
	status, _ = stack.do(t, http.MethodPut, "/notas/editar/"+created.NotaID, map[string]string{"titulo": "Hidratación diaria", "categoria": "Salud"})
	if status != http.StatusOK {
		t.Fatalf("update failed: %d", status)
	}
	_, listed := stack.do(t, http.MethodGet, "/notas/listar", nil)
	if len(listed.Notas) != 1 || listed.Notas[0].Title != "Hidratación diaria" || listed.Notas[0].Category != "Salud" {
		t.Fatalf("unexpected notes %+v", listed.Notas)
	}

	status, _ = stack.do(t, http.MethodPost, "/perfil/editar", map[string]any{"nombre": "Luis G.", "etiquetas": []string{"Running"}})
	if status != http.StatusOK {
		t.Fatalf("profile update failed: %d", status)
	}
	_, profile := stack.do(t, http.MethodGet, "/perfil/datos", nil)
	if profile.Perfil.Name != "Luis G." || len(profile.Perfil.Tags) != 1 || profile.Perfil.Stats.TotalNotes != 1 {
		t.Fatalf("unexpected profile %+v", profile.Perfil)
	}

	status, _ = stack.do(t, http.MethodDelete, "/notas/eliminar/"+created.NotaID, nil)
	if status != http.StatusOK {
		t.Fatalf("delete note failed: %d", status)
	}
	status, gone := stack.do(t, http.MethodGet, "/notas/obtener/"+created.NotaID, nil)
	if status != http.StatusNotFound || gone.Message != "Nota no encontrada" {
		t.Fatalf("expected note not found, got %d %+v", status, gone)
	}
}

func TestSessionLifecycle(t *testing.T) {
	stack := newTestStack(t)

	status, anonymous := stack.do(t, http.MethodGet, "/racha/datos", nil)
	if status != http.StatusUnauthorized || anonymous.Code != "auth.missing_token" {
		t.Fatalf("expected unauthorized without session, got %d %+v", status, anonymous)
	}

	stack.register(t, "Ana", "ana@example.com")
	status, duplicate := stack.do(t, http.MethodPost, "/register", map[string]string{"nombre": "Ana", "email": "ana@example.com", "password": "x"})
	if status != http.StatusConflict || duplicate.Message != "El email ya está registrado" {
		t.Fatalf("expected duplicate rejection, got %d %+v", status, duplicate)
	}

	stack.do(t, http.MethodGet, "/logout", nil)
	if status, _ := stack.do(t, http.MethodGet, "/perfil/datos", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected logout to clear the session, got %d", status)
	}

	form := url.Values{"email": {"ana@example.com"}, "password": {"wrong"}}
	response, err := stack.client.PostForm(stack.server.URL+"/login", form)
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected bad credentials to be rejected, got %d", response.StatusCode)
	}

	form.Set("password", "clave-segura")
	response, err = stack.client.PostForm(stack.server.URL+"/login", form)
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	var login envelope
	if err := json.NewDecoder(response.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK || login.Token == "" {
		t.Fatalf("expected login to succeed, got %d %+v", response.StatusCode, login)
	}

	bearer, err := http.NewRequest(http.MethodGet, stack.server.URL+"/perfil/datos", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	bearer.Header.Set("Authorization", "Bearer "+login.Token)
	bearerResponse, err := http.DefaultClient.Do(bearer)
	if err != nil {
		t.Fatalf("bearer request failed: %v", err)
	}
	bearerResponse.Body.Close()
	if bearerResponse.StatusCode != http.StatusOK {
		t.Fatalf("expected bearer token to be accepted, got %d", bearerResponse.StatusCode)
	}

	if status, _ := stack.do(t, http.MethodDelete, "/eliminar-cuenta", nil); status != http.StatusOK {
		t.Fatalf("account deletion failed: %d", status)
	}
	var remaining int64
	stack.database.Model(&users.User{}).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected account to be removed, found %d users", remaining)
	}
}

func TestStreakStreamPublishesCompletions(t *testing.T) {
	stack := newTestStack(t)
	registered := stack.register(t, "Ana", "ana@example.com")
	_, created := stack.do(t, http.MethodPost, "/rutina/guardar", map[string]any{"nombre": "Cardio", "tipo": "cardio", "duracion": 30})

	streamRequest, err := http.NewRequest(http.MethodGet, stack.server.URL+"/racha/stream", http.NoBody)
	if err != nil {
		t.Fatalf("build stream request: %v", err)
	}
	streamRequest.Header.Set("Authorization", "Bearer "+registered.Token)
	streamResponse, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { _ = streamResponse.Body.Close() })
	if streamResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status %d", streamResponse.StatusCode)
	}

	events := make(chan map[string]int, 4)
	go func() {
		reader := bufio.NewReader(streamResponse.Body)
		currentEvent := ""
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(events)
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "event:"):
				currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:") && currentEvent == server.RealtimeEventStreakChanged:
				var payload map[string]any
				if json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload) != nil {
					continue
				}
				current, _ := payload["diasConsecutivos"].(float64)
				best, _ := payload["recordPersonal"].(float64)
				events <- map[string]int{"current": int(current), "best": int(best)}
			}
		}
	}()

	next := func() map[string]int {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatal("stream closed before event")
			}
			return event
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for streak event")
		}
		return nil
	}

	if initial := next(); initial["current"] != 0 {
		t.Fatalf("expected initial snapshot with zero streak, got %v", initial)
	}

	if status, _ := stack.do(t, http.MethodPost, "/rutina/completar/"+created.RutinaID, nil); status != http.StatusOK {
		t.Fatalf("unexpected complete status %d", status)
	}

	if update := next(); update["current"] != 1 || update["best"] != 1 {
		t.Fatalf("expected streak update to 1/1, got %v", update)
	}
}

func TestDefaultStackSendsNoCORSHeaders(t *testing.T) {
	stack := newTestStack(t)
	stack.register(t, "Ana", "ana@example.com")

	request, err := http.NewRequest(http.MethodGet, stack.server.URL+"/perfil/datos", http.NoBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Origin", "https://evil.example")
	response, err := stack.client.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	if got := response.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allowed origin, got %q", got)
	}
	if got := response.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials header, got %q", got)
	}
}
