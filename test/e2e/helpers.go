//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloo-solutions/supportdesk/internal/api/handlers"
	"github.com/cloo-solutions/supportdesk/internal/api/middleware"
	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/extract"
	"github.com/cloo-solutions/supportdesk/internal/repository"
	"github.com/cloo-solutions/supportdesk/internal/server"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/cloo-solutions/supportdesk/internal/session"
	"github.com/cloo-solutions/supportdesk/internal/storage"
	"github.com/cloo-solutions/supportdesk/internal/testutil"
	"github.com/cloo-solutions/supportdesk/internal/whatsapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	apiToken    = "e2e-token"
	owner       = "e2e"
	verifyToken = "e2e-verify"
	dimensions  = 1536
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	S3Client   *storage.S3Client
	Server     *httptest.Server
	Graph      *fakeGraph
	Campaigns  *service.CampaignService
	HTTPClient *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, wires the real services behind the
// router, and fakes the embedding, chat and WhatsApp providers.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "e2e-uploads",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create s3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to ensure bucket: %v", err)
	}

	graph := newFakeGraph()
	wa := whatsapp.NewClient(whatsapp.Config{
		Token:         "graph-token",
		PhoneNumberID: "100",
		BaseURL:       graph.URL,
	})

	embedder := service.NewEmbeddingGenerator(hashEmbedder{}, service.DefaultEmbeddingConfig())
	retrieval := service.NewRetrievalService(
		extract.NewExtractor(),
		service.NewChunker(service.DefaultChunkConfig()),
		embedder,
		repository.NewKnowledgeChunkRepository(pool),
		repository.NewTxRunner(pool),
		nil,
	).WithArchive(s3Client).WithConnector(repository.NewPostgresConnector())

	campaigns := service.NewCampaignService(repository.NewCampaignRepository(pool), wa, nil)
	conversation := service.NewConversationService(
		echoChat{},
		retrieval,
		repository.NewOrderRepository(pool),
		session.NewMemoryStore(session.Config{}),
		nil,
	)

	router := server.NewRouter(server.RouterConfig{
		TokenValidator:   middleware.NewStaticToken(apiToken, owner),
		KnowledgeHandler: handlers.NewKnowledgeHandler(retrieval),
		CampaignHandler:  handlers.NewCampaignHandler(campaigns),
		WebhookHandler:   handlers.NewWebhookHandler(verifyToken, conversation, campaigns, wa, nil),
	})

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		Server:     httptest.NewServer(router),
		Graph:      graph,
		Campaigns:  campaigns,
		HTTPClient: &http.Client{},
	}
	t.Cleanup(env.Cleanup)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Graph != nil {
		e.Graph.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse is the JSON envelope every endpoint answers with.
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (e *E2ETestEnv) Get(path string) *APIResponse {
	return e.doRequest(http.MethodGet, path, "", nil)
}

func (e *E2ETestEnv) Post(path string, body interface{}) *APIResponse {
	data, err := json.Marshal(body)
	if err != nil {
		e.T.Fatalf("failed to marshal body: %v", err)
	}
	return e.doRequest(http.MethodPost, path, "application/json", bytes.NewReader(data))
}

func (e *E2ETestEnv) Delete(path string) *APIResponse {
	return e.doRequest(http.MethodDelete, path, "", nil)
}

// Upload posts content as the multipart "file" field.
func (e *E2ETestEnv) Upload(filename string, content []byte) *APIResponse {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		e.T.Fatalf("failed to create form file: %v", err)
	}
	part.Write(content)
	mw.Close()
	return e.doRequest(http.MethodPost, "/knowledge/upload", mw.FormDataContentType(), &buf)
}

// Webhook posts an inbound WhatsApp text message.
func (e *E2ETestEnv) Webhook(from, text string) *APIResponse {
	payload := fmt.Sprintf(`{"entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":%q,"profile":{"name":"Customer"}}],
		"messages":[{"from":%q,"type":"text","text":{"body":%q}}]}}]}]}`, from, from, text)
	req, err := http.NewRequest(http.MethodPost, e.Server.URL+"/webhook", strings.NewReader(payload))
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("webhook request failed: %v", err)
	}
	resp.Body.Close()
	return &APIResponse{Status: resp.StatusCode}
}

func (e *E2ETestEnv) doRequest(method, path, contentType string, body io.Reader) *APIResponse {
	req, err := http.NewRequest(method, e.Server.URL+path, body)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			e.T.Fatalf("invalid response body %q: %v", respBody, err)
		}
	}
	return apiResp
}

// Decode unmarshals the data envelope into v.
func (r *APIResponse) Decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", r.Data, err)
	}
}

// hashEmbedder maps each word to a fixed dimension so texts sharing words
// land close together.
type hashEmbedder struct{}

func (hashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,:;!?")))
		vec[h.Sum32()%dimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// echoChat answers with the first knowledge line of the system prompt.
type echoChat struct{}

func (echoChat) Complete(ctx context.Context, system string, history []domain.ChatMessage, message string) (string, error) {
	for _, line := range strings.Split(system, "\n") {
		if strings.HasPrefix(line, "Content: ") {
			return "**Answer:** " + strings.TrimPrefix(line, "Content: "), nil
		}
	}
	return "No answer for: " + message, nil
}

// fakeGraph records messages and rejects recipients listed in reject.
type fakeGraph struct {
	*httptest.Server

	mu       sync.Mutex
	reject   map[string]bool
	messages []map[string]interface{}
}

func newFakeGraph() *fakeGraph {
	g := &fakeGraph{reject: map[string]bool{}}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	return g
}

func (g *fakeGraph) Reject(phone string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reject[phone] = true
}

func (g *fakeGraph) Messages() []map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]interface{}{}, g.messages...)
}

func (g *fakeGraph) handle(w http.ResponseWriter, r *http.Request) {
	var msg map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, _ := msg["to"].(string)

	g.mu.Lock()
	rejected := g.reject[to]
	if !rejected {
		g.messages = append(g.messages, msg)
	}
	n := len(g.messages)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if rejected {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"Recipient phone number not in allowed list","code":131030}}`)
		return
	}
	fmt.Fprintf(w, `{"messaging_product":"whatsapp","contacts":[{"input":%q,"wa_id":%q}],"messages":[{"id":"wamid.%d"}]}`, to, strings.TrimPrefix(to, "+"), n)
}
