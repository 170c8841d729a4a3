package httptransport_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nestfeed/internal/cache"
	"nestfeed/internal/domain"
	"nestfeed/internal/listing"
	"nestfeed/internal/navigation"
	"nestfeed/internal/remote/memory"
	"nestfeed/internal/session"
	httptransport "nestfeed/internal/transport/http"
	"nestfeed/pkg/testutil"
)

type sessionBody struct {
	Identity   string `json:"identity"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Navigation string `json:"navigation"`
}

// HandlerSuite wires the full stack behind the router: in-memory remote,
// running session controller, sync and service.
type HandlerSuite struct {
	suite.Suite

	store   *memory.Store
	creds   *memory.Credentials
	cache   cache.Cache
	service *listing.Service
	router  http.Handler
	cancel  context.CancelFunc
	done    chan struct{}
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.NewStore()
	s.creds = memory.NewCredentials("test-key")
	s.cache = cache.NewMemory()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	nav := navigation.NewRecorder()

	ctrl := session.New(s.creds, s.store, nav, session.WithLogger(logger))
	sync := listing.NewSync(s.store, s.cache, listing.WithSyncLogger(logger))
	s.service = listing.NewService(s.store, s.store, s.cache, listing.WithServiceLogger(logger))

	handler := httptransport.NewHandler(ctrl, sync, s.service, nav, logger)
	s.router = httptransport.NewRouter(handler)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	settled := ctrl.Settled()
	go func() {
		defer close(s.done)
		_ = ctrl.Run(ctx)
	}()
	<-settled
}

func (s *HandlerSuite) TearDownTest() {
	s.cancel()
	<-s.done
}

func (s *HandlerSuite) registerAs(email, role string) sessionBody {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
		map[string]string{"email": email, "password": "secret1", "role": role}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[sessionBody](s.T(), rr)
}

func (s *HandlerSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestMetricsExposed() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestRegisterSettlesIntoRoleHome() {
	body := s.registerAs("ada@example.com", "realtor")
	s.Equal("authenticated", body.Status)
	s.Equal("realtor", body.Role)
	s.Equal("realtor-home", body.Navigation)
	s.NotEmpty(body.Identity)
}

func (s *HandlerSuite) TestLoginLogoutCycle() {
	s.registerAs("bo@example.com", "customer")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/logout", struct{}{}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.UnmarshalResponse[sessionBody](s.T(), rr)
	s.Equal("unauthenticated", body.Status)
	s.Equal("sign-in", body.Navigation)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": "bo@example.com", "password": "secret1"}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body = testutil.UnmarshalResponse[sessionBody](s.T(), rr)
	s.Equal("authenticated", body.Status)
	s.Equal("customer", body.Role)
	s.Equal("customer-home", body.Navigation)
}

func (s *HandlerSuite) TestLoginBadPassword() {
	s.registerAs("ada@example.com", "realtor")

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"email": "ada@example.com", "password": "wrong"}))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	testutil.AssertErrorCode(s.T(), rr, "auth_error")
}

func (s *HandlerSuite) TestRegisterRejectsUnknownRole() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
		map[string]string{"email": "x@example.com", "password": "secret1", "role": "landlord"}))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "invalid_input")
}

func (s *HandlerSuite) TestSessionEndpointReflectsState() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.UnmarshalResponse[sessionBody](s.T(), rr)
	s.Equal("unauthenticated", body.Status)
}

func multipartDraft(t *testing.T, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("description", "sunny loft")
	_ = mw.WriteField("area_size", "92m2")
	_ = mw.WriteField("rooms", "3")
	_ = mw.WriteField("price", "1750")
	if image != nil {
		fw, err := mw.CreateFormFile("image", "photo.jpg")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(image)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func (s *HandlerSuite) createListing(image []byte) domain.Listing {
	body, contentType := multipartDraft(s.T(), image)
	req := httptest.NewRequest(http.MethodPost, "/listings/", body)
	req.Header.Set("Content-Type", contentType)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[domain.Listing](s.T(), rr)
}

func (s *HandlerSuite) TestListingLifecycle() {
	s.registerAs("ada@example.com", "realtor")

	created := s.createListing([]byte("img-bytes"))
	s.NotEmpty(created.ID)
	s.Equal("mem://listings/"+created.ID, created.ImageURL)

	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/listings/"+created.ID, nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	got := testutil.UnmarshalResponse[domain.Listing](s.T(), rr)
	s.Equal("sunny loft", got.Description)

	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/listings/", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	all := testutil.UnmarshalResponse[[]domain.Listing](s.T(), rr)
	s.Len(all, 1)

	got.Description = "renovated loft"
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/listings/"+created.ID, got))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	updated := testutil.UnmarshalResponse[domain.Listing](s.T(), rr)
	s.Equal("renovated loft", updated.Description)
	s.True(updated.CreatedAt.Equal(created.CreatedAt))

	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodDelete, "/listings/"+created.ID, nil))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/listings/", nil))
	all = testutil.UnmarshalResponse[[]domain.Listing](s.T(), rr)
	s.Empty(all)
}

func (s *HandlerSuite) TestCreateRequiresSignIn() {
	body, contentType := multipartDraft(s.T(), nil)
	req := httptest.NewRequest(http.MethodPost, "/listings/", body)
	req.Header.Set("Content-Type", contentType)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	testutil.AssertErrorCode(s.T(), rr, "auth_error")
}

func (s *HandlerSuite) TestCreateForbiddenForCustomers() {
	s.registerAs("bo@example.com", "customer")

	body, contentType := multipartDraft(s.T(), nil)
	req := httptest.NewRequest(http.MethodPost, "/listings/", body)
	req.Header.Set("Content-Type", contentType)

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	testutil.AssertErrorCode(s.T(), rr, "permission_denied")
}

func (s *HandlerSuite) TestCreateRejectsBadNumbers() {
	s.registerAs("ada@example.com", "realtor")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("description", "x")
	_ = mw.WriteField("area_size", "1m2")
	_ = mw.WriteField("rooms", "two")
	_ = mw.WriteField("price", "100")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/listings/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, "invalid_input")
}

func (s *HandlerSuite) TestGetMissingListingIs404() {
	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/listings/ghost", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertErrorCode(s.T(), rr, "not_found")
}

func (s *HandlerSuite) TestFilteredList() {
	s.registerAs("ada@example.com", "realtor")
	created := s.createListing(nil)

	rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet,
		"/listings/?filter_field=ownerId&filter_value="+created.OwnerID, nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	mine := testutil.UnmarshalResponse[[]domain.Listing](s.T(), rr)
	s.Len(mine, 1)

	rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet,
		"/listings/?filter_field=ownerId&filter_value=somebody-else", nil))
	others := testutil.UnmarshalResponse[[]domain.Listing](s.T(), rr)
	s.Empty(others)
}

// TestFeedStreamsSnapshots drives the SSE endpoint over a real server: the
// initial result set arrives immediately, then one event per mutation.
func (s *HandlerSuite) TestFeedStreamsSnapshots() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/listings/feed", nil)
	s.Require().NoError(err)
	resp, err := srv.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readSnapshot := func() []domain.Listing {
		for {
			line, err := reader.ReadString('\n')
			s.Require().NoError(err)
			if strings.HasPrefix(line, "data: ") {
				var listings []domain.Listing
				s.Require().NoError(json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &listings))
				return listings
			}
		}
	}

	s.Empty(readSnapshot(), "initial snapshot of an empty collection")

	created, err := s.service.Create(context.Background(), "realtor-1", listing.Draft{
		Description: "streamed", AreaSize: "40m2", Rooms: 1, Price: 700,
	}, nil)
	s.Require().NoError(err)

	next := readSnapshot()
	s.Require().Len(next, 1)
	s.Equal(created.ID, next[0].ID)
}
