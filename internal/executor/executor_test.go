package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"scout/internal/config"
	"scout/internal/page"
	"scout/internal/page/pagetest"
	"scout/internal/recipe"
	"scout/internal/variables"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listURL = "https://movies.example.com/search?q=matrix"

func strPtr(s string) *string { return &s }

type fixture struct {
	store *variables.Store
	ctrl  *pagetest.Controller
	exec  *Executor
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctrl := pagetest.NewController()
	ctrl.AddPage(listURL, map[string][]*pagetest.Element{
		".result": {
			{Content: " The Matrix "},
			{Content: "The Matrix Reloaded"},
			{Content: "The Matrix Revolutions"},
		},
		".result:nth-child(1) .title": {{Content: "\n  The Matrix\n  "}},
		".result:nth-child(2) .title": {{Content: "The Matrix Reloaded"}},
		".result:nth-child(3) .title": {{Content: "The Matrix Revolutions"}},
		".result:nth-child(1) a":      {{Attrs: map[string]string{"href": " /m/603 "}}},
		".genre:nth-child(1)":         {{Content: "Action"}},
		".genre:nth-child(2)":         {{Content: ""}},
		".genre:nth-child(3)":         {{Content: "Sci-Fi"}},
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := variables.NewStore(map[string]string{"ENV_ONLY": "from-env"})
	cfg := config.Default()
	return &fixture{
		store: store,
		ctrl:  ctrl,
		exec:  New(store, ctrl, cfg, logger, opts...),
		logs:  &logs,
	}
}

func (f *fixture) run(t *testing.T, steps ...recipe.Step) {
	t.Helper()
	for _, s := range steps {
		_ = f.exec.Execute(context.Background(), s)
	}
}

func (f *fixture) get(key string) string {
	return f.store.GetString(key)
}

func loadList() recipe.Step {
	return recipe.Step{Command: recipe.CommandLoad, URL: "https://movies.example.com/search?q=$QUERY"}
}

func out(name string) recipe.Output {
	show := true
	return recipe.Output{Name: name, Show: &show}
}

// TestLoad_ResolvesURLAndTimeout verifies templating, wait policy and the default timeout
func TestLoad_ResolvesURLAndTimeout(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	require.NoError(t, f.exec.Execute(context.Background(), loadList()))

	require.Len(t, f.ctrl.Loads, 1)
	assert.Equal(t, listURL, f.ctrl.Loads[0].URL)
	assert.Equal(t, page.WaitLoad, f.ctrl.Loads[0].Opts.WaitUntil)
	assert.Equal(t, 30*time.Second, f.ctrl.Loads[0].Opts.Timeout)
	assert.Empty(t, f.ctrl.Headers, "no headers configured")
}

// TestLoad_JSAndTimeoutFloor verifies js waits for network idle and the minimum timeout
func TestLoad_JSAndTimeoutFloor(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")
	step := loadList()
	step.Config = recipe.StepConfig{JS: true, Timeout: 100}

	require.NoError(t, f.exec.Execute(context.Background(), step))

	require.Len(t, f.ctrl.Loads, 1)
	assert.Equal(t, page.WaitNetworkIdle, f.ctrl.Loads[0].Opts.WaitUntil)
	assert.Equal(t, 5*time.Second, f.ctrl.Loads[0].Opts.Timeout)
}

// TestLoad_HeadersAndCookies verifies templated headers and cookie extraction
func TestLoad_HeadersAndCookies(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")
	f.store.SetString("TOKEN", "t0k")
	step := loadList()
	step.Config = recipe.StepConfig{Headers: map[string]string{
		"X-Token": "$TOKEN",
		"cookie":  "session=abc; consent=yes",
	}}

	require.NoError(t, f.exec.Execute(context.Background(), step))

	require.Len(t, f.ctrl.Headers, 1)
	assert.Equal(t, map[string]string{"X-Token": "t0k"}, f.ctrl.Headers[0])
	assert.Equal(t, []page.Cookie{
		{Name: "session", Value: "abc", Domain: "movies.example.com"},
		{Name: "consent", Value: "yes", Domain: "movies.example.com"},
	}, f.ctrl.Cookies)
}

// TestLoad_MissingURL verifies the step is a logged no-op
func TestLoad_MissingURL(t *testing.T) {
	f := newFixture(t)

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandLoad})

	assert.ErrorIs(t, err, ErrMissingField)
	assert.Empty(t, f.ctrl.Loads)
	assert.Contains(t, f.logs.String(), "level=ERROR")
}

// TestLoad_NavigationFailure verifies navigation errors are reported, not fatal
func TestLoad_NavigationFailure(t *testing.T) {
	f := newFixture(t)
	f.ctrl.LoadErr["https://down.example.com"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandLoad, URL: "https://down.example.com"})

	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
}

// TestStoreText verifies trimmed text of the first match and not-found handling
func TestStoreText(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	f.run(t,
		loadList(),
		recipe.Step{Command: recipe.CommandStoreText, Locator: ".result", Output: out("TITLE")},
		recipe.Step{Command: recipe.CommandStoreText, Locator: ".missing", Output: out("MISSING")},
	)

	assert.Equal(t, "The Matrix", f.get("TITLE"))
	v, ok := f.store.Lookup("MISSING")
	require.True(t, ok, "not found stores an empty string")
	assert.Equal(t, "", v.Str())
}

// TestStoreAttribute verifies attribute reads and missing elements
func TestStoreAttribute(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")
	f.store.SetString("n", "1")

	f.run(t,
		loadList(),
		recipe.Step{Command: recipe.CommandStoreAttribute, Locator: ".result:nth-child($n) a", AttributeName: "href", Output: out("URL")},
		recipe.Step{Command: recipe.CommandStoreAttribute, Locator: ".nope", AttributeName: "href", Output: out("NOPE")},
		recipe.Step{Command: recipe.CommandStoreAttribute, Locator: ".result:nth-child(1) a", AttributeName: "title", Output: out("NOATTR")},
	)

	assert.Equal(t, "/m/603", f.get("URL"))
	assert.Equal(t, "", f.get("NOPE"))
	assert.Equal(t, "", f.get("NOATTR"))
}

// TestStoreAttribute_MissingFields verifies MissingRequiredField handling
func TestStoreAttribute_MissingFields(t *testing.T) {
	f := newFixture(t)

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandStoreAttribute, Locator: ".x", Output: out("X")})

	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "", f.get("X"))
}

// TestStoreCount verifies element counting
func TestStoreCount(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	f.run(t,
		loadList(),
		recipe.Step{Command: recipe.CommandStoreCount, Locator: ".result", Output: out("COUNT")},
		recipe.Step{Command: recipe.CommandStoreCount, Locator: ".none", Output: out("ZERO")},
	)

	assert.Equal(t, "3", f.get("COUNT"))
	assert.Equal(t, "0", f.get("ZERO"))
}

// TestLoop_IterationCountAndKeys verifies floor((to-from)/step)+1 distinct keys
func TestLoop_IterationCountAndKeys(t *testing.T) {
	cases := []struct {
		from, to, step string
		want           []string
	}{
		{"1", "3", "1", []string{"TITLE1", "TITLE2", "TITLE3"}},
		{"0", "9", "4", []string{"TITLE0", "TITLE4", "TITLE8"}},
		{"5", "5", "2", []string{"TITLE5"}},
		{"3", "1", "1", nil},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s-%s-%s", tc.from, tc.to, tc.step), func(t *testing.T) {
			f := newFixture(t)
			step := recipe.Step{
				Command: recipe.CommandStore,
				Input:   "row $i",
				Config:  recipe.StepConfig{Loop: &recipe.Loop{Index: "i", From: recipe.Bound(tc.from), To: recipe.Bound(tc.to), Step: recipe.Bound(tc.step)}},
				Output:  out("TITLE$i"),
			}

			require.NoError(t, f.exec.Execute(context.Background(), step))

			var keys []string
			for k := range f.store.Snapshot() {
				if k != "i" {
					keys = append(keys, k)
				}
			}
			assert.ElementsMatch(t, tc.want, keys)
			for _, k := range tc.want {
				assert.Equal(t, "row "+k[len("TITLE"):], f.get(k))
			}
		})
	}
}

// TestLoop_TemplatedBounds verifies bounds are resolved from variables
func TestLoop_TemplatedBounds(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	f.run(t,
		loadList(),
		recipe.Step{Command: recipe.CommandStoreCount, Locator: ".result", Output: out("COUNT")},
		recipe.Step{
			Command: recipe.CommandStoreText,
			Locator: ".result:nth-child($i) .title",
			Config:  recipe.StepConfig{Loop: &recipe.Loop{Index: "i", From: "1", To: "$COUNT"}},
			Output:  out("TITLE$i"),
		},
	)

	assert.Equal(t, "The Matrix", f.get("TITLE1"))
	assert.Equal(t, "The Matrix Reloaded", f.get("TITLE2"))
	assert.Equal(t, "The Matrix Revolutions", f.get("TITLE3"))
	assert.Equal(t, "3", f.get("i"), "index keeps its last value")
}

// TestLoop_StoreArrayAccumulates verifies non-empty results are pushed
func TestLoop_StoreArrayAccumulates(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	f.run(t,
		loadList(),
		recipe.Step{
			Command: recipe.CommandStoreArray,
			Locator: ".genre:nth-child($i)",
			Config:  recipe.StepConfig{Loop: &recipe.Loop{Index: "i", From: "1", To: "4"}},
			Output:  out("GENRE"),
		},
	)

	v, ok := f.store.Lookup("GENRE")
	require.True(t, ok)
	assert.Equal(t, variables.KindList, v.Kind())
	assert.Equal(t, []string{"Action", "Sci-Fi"}, v.Items())
}

// TestStoreArray_NonLoopPushes verifies store_array without a loop still appends
func TestStoreArray_NonLoopPushes(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	f.run(t,
		loadList(),
		recipe.Step{Command: recipe.CommandStoreArray, Locator: ".genre:nth-child(1)", Output: out("GENRE")},
		recipe.Step{Command: recipe.CommandStoreArray, Locator: ".genre:nth-child(3)", Output: out("GENRE")},
		recipe.Step{Command: recipe.CommandStoreArray, Locator: ".missing", Output: out("EMPTY")},
	)

	v, _ := f.store.Lookup("GENRE")
	assert.Equal(t, []string{"Action", "Sci-Fi"}, v.Items())
	_, ok := f.store.Lookup("EMPTY")
	assert.False(t, ok, "empty results are not pushed")
}

// TestLoop_InvalidBounds verifies bad loops are skipped with an error
func TestLoop_InvalidBounds(t *testing.T) {
	f := newFixture(t)
	step := recipe.Step{
		Command: recipe.CommandStore,
		Input:   "x",
		Config:  recipe.StepConfig{Loop: &recipe.Loop{Index: "i", From: "1", To: "$UNSET"}},
		Output:  out("X$i"),
	}

	err := f.exec.Execute(context.Background(), step)
	assert.ErrorIs(t, err, ErrInvalidLoop)

	step.Config.Loop = &recipe.Loop{Index: "i", From: "1", To: "3", Step: "-1"}
	err = f.exec.Execute(context.Background(), step)
	assert.ErrorIs(t, err, ErrInvalidLoop)

	step.Config.Loop = &recipe.Loop{From: "1", To: "3"}
	err = f.exec.Execute(context.Background(), step)
	assert.ErrorIs(t, err, ErrMissingField)

	assert.Equal(t, 0, f.store.Len())
}

// TestLoop_UpperBoundAtMaxInt verifies loops ending at the largest int terminate
func TestLoop_UpperBoundAtMaxInt(t *testing.T) {
	f := newFixture(t)
	step := recipe.Step{
		Command: recipe.CommandStore,
		Input:   "$i",
		Config: recipe.StepConfig{Loop: &recipe.Loop{
			Index: "i",
			From:  recipe.Bound(strconv.Itoa(math.MaxInt - 3)),
			To:    recipe.Bound(strconv.Itoa(math.MaxInt)),
			Step:  "2",
		}},
		Output: out("N"),
	}

	require.NoError(t, f.exec.Execute(context.Background(), step))

	assert.Equal(t, strconv.Itoa(math.MaxInt-1), f.get("i"))
	assert.Equal(t, strconv.Itoa(math.MaxInt-1), f.get("N"))
}

// TestLoop_ParseIntPrefix verifies bounds parse like parseInt
func TestLoop_ParseIntPrefix(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("TOTAL", " 2 results")
	step := recipe.Step{
		Command: recipe.CommandStore,
		Input:   "$i",
		Config:  recipe.StepConfig{Loop: &recipe.Loop{Index: "i", From: "1", To: "$TOTAL", Step: "0"}},
		Output:  out("N$i"),
	}

	require.NoError(t, f.exec.Execute(context.Background(), step))

	assert.Equal(t, "1", f.get("N1"))
	assert.Equal(t, "2", f.get("N2"))
}

// TestRegex verifies group extraction, full matches and the no-match fallback
func TestRegex(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("RAW", "Released: 1999 (USA)")
	f.store.SetString("ESCAPED", `price\: 10\.5 \(EUR\)`)

	f.run(t,
		recipe.Step{Command: recipe.CommandRegex, Input: "$RAW", Expression: `(\d{4})`, Output: out("YEAR")},
		recipe.Step{Command: recipe.CommandRegex, Input: "$RAW", Expression: `\(\w+\)`, Output: out("COUNTRY")},
		recipe.Step{Command: recipe.CommandRegex, Input: "$RAW", Expression: `(x)?(USA)`, Output: out("SECOND")},
		recipe.Step{Command: recipe.CommandRegex, Input: "$RAW", Expression: `\d{5}`, Output: out("NOMATCH")},
		recipe.Step{Command: recipe.CommandRegex, Input: "$ESCAPED", Expression: `zzz`, Output: out("UNESCAPED")},
		recipe.Step{Command: recipe.CommandRegex, Input: "a\nb", Expression: `a.b`, Output: out("DOTALL")},
	)

	assert.Equal(t, "1999", f.get("YEAR"))
	assert.Equal(t, "(USA)", f.get("COUNTRY"))
	assert.Equal(t, "USA", f.get("SECOND"))
	assert.Equal(t, "Released: 1999 (USA)", f.get("NOMATCH"))
	assert.Equal(t, `price\: 10.5 (EUR)`, f.get("UNESCAPED"))
	assert.Contains(t, f.logs.String(), "regex did not match")
}

// TestRegex_InvalidExpression verifies malformed expressions return the input
func TestRegex_InvalidExpression(t *testing.T) {
	f := newFixture(t)

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandRegex, Input: "abc", Expression: `(`, Output: out("X")})

	assert.ErrorContains(t, err, "invalid expression")
	assert.Equal(t, "abc", f.get("X"))
}

// TestRegex_JavaScriptSyntax verifies lookaround and backreferences are supported
func TestRegex_JavaScriptSyntax(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("RAW", "Runtime: 136 min")

	steps := []recipe.Step{
		{Command: recipe.CommandRegex, Input: "$RAW", Expression: `\d+(?= min)`, Output: out("DURATION")},
		{Command: recipe.CommandRegex, Input: "abc", Expression: `(?<=a)b`, Output: out("BEHIND")},
		{Command: recipe.CommandRegex, Input: "say 'hi' now", Expression: `(['"])(.*?)\1`, Output: out("QUOTE")},
	}
	for _, s := range steps {
		require.NoError(t, f.exec.Execute(context.Background(), s), s.Expression)
	}

	assert.Equal(t, "136", f.get("DURATION"))
	assert.Equal(t, "b", f.get("BEHIND"))
	assert.Equal(t, "'", f.get("QUOTE"), "first non-empty group wins")
}

// TestRegex_FirstNonEmptyGroup verifies skipped branches fall through and empty groups yield the whole match
func TestRegex_FirstNonEmptyGroup(t *testing.T) {
	f := newFixture(t)

	f.run(t,
		recipe.Step{Command: recipe.CommandRegex, Input: "id b42", Expression: `(?:a(\d+)|b(\d+))`, Output: out("BRANCH")},
		recipe.Step{Command: recipe.CommandRegex, Input: "<xy>", Expression: `x(\d*)y`, Output: out("WHOLE")},
	)

	assert.Equal(t, "42", f.get("BRANCH"))
	assert.Equal(t, "xy", f.get("WHOLE"))
}

// TestStore verifies templated literals and the missing-input fallback
func TestStore(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("TITLE", "Inception")
	f.store.SetString("YEAR", "2010")

	f.run(t,
		recipe.Step{Command: recipe.CommandStore, Input: "$TITLE ($YEAR) $ENV_ONLY", Output: out("LABEL")},
		recipe.Step{Command: recipe.CommandStore, Output: out("EMPTY")},
	)

	assert.Equal(t, "Inception (2010) from-env", f.get("LABEL"))
	v, ok := f.store.Lookup("EMPTY")
	require.True(t, ok)
	assert.Equal(t, "", v.Str())
}

// TestReplace verifies literal global replacement
func TestReplace(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("PATH", "a.b.c")

	f.run(t,
		recipe.Step{Command: recipe.CommandReplace, Input: "a.b.c", Find: strPtr("."), Replace: strPtr("-"), Output: out("DASHED")},
		recipe.Step{Command: recipe.CommandReplace, Input: "$PATH", Find: strPtr("."), Replace: strPtr(""), Output: out("JOINED")},
		recipe.Step{Command: recipe.CommandReplace, Input: "(1+1)*2", Find: strPtr("+"), Replace: strPtr(" plus "), Output: out("META")},
		recipe.Step{Command: recipe.CommandReplace, Input: "abc", Replace: strPtr("x"), Output: out("NOFIND")},
	)

	assert.Equal(t, "a-b-c", f.get("DASHED"))
	assert.Equal(t, "abc", f.get("JOINED"))
	assert.Equal(t, "(1 plus 1)*2", f.get("META"))
	assert.Equal(t, "", f.get("NOFIND"))
}

// TestURLEncode verifies encodeURIComponent semantics on the literal input
func TestURLEncode(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("INPUT", "ignored")

	f.run(t,
		recipe.Step{Command: recipe.CommandURLEncode, Input: "the matrix & co/é!", Output: out("Q")},
		recipe.Step{Command: recipe.CommandURLEncode, Input: "$INPUT", Output: out("LITERAL")},
	)

	assert.Equal(t, "the%20matrix%20%26%20co%2F%C3%A9!", f.get("Q"))
	assert.Equal(t, "%24INPUT", f.get("LITERAL"))
}

// TestStoreURL verifies the current page URL is stored
func TestStoreURL(t *testing.T) {
	f := newFixture(t)
	f.store.SetString("QUERY", "matrix")

	f.run(t, loadList(), recipe.Step{Command: recipe.CommandStoreURL, Output: out("URL")})

	assert.Equal(t, listURL, f.get("URL"))
}

// TestUnknownCommand verifies unknown commands are skipped without output
func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	err := f.exec.Execute(context.Background(), recipe.Step{
		Command: "click",
		Config:  recipe.StepConfig{Loop: &recipe.Loop{Index: "i", From: "1", To: "3"}},
		Output:  out("X$i"),
	})

	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, 0, f.store.Len(), "loop index is not bound for unknown commands")
	assert.Contains(t, f.logs.String(), "level=ERROR")
}

// TestJSONStoreText verifies dot paths over stored JSON documents
func TestJSONStoreText(t *testing.T) {
	f := newFixture(t)
	f.store.Set("RESPONSE", variables.JSON([]byte(`{
		"results": [
			{"title": "Inception", "year": 2010, "adult": false, "cast": ["Leo"], "studio": {"name": "WB"}},
			{"title": "Tenet \"2020\"", "year": null}
		],
		"0": "zero-key"
	}`)))
	f.store.SetString("i", "1")

	f.run(t,
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "results.0.title", Output: out("TITLE0")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "$RESPONSE", Locator: "results.$i.title", Output: out("TITLE1")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "results.0.year", Output: out("YEAR")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "results.0.adult", Output: out("ADULT")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "results.0.studio", Output: out("STUDIO")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "0", Output: out("ZERO")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "results.5.title", Output: out("MISSING")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "RESPONSE", Locator: "results.1.year", Output: out("NULL")},
		recipe.Step{Command: recipe.CommandJSONStoreText, Input: "NOT_SET", Locator: "a", Output: out("NODOC")},
	)

	assert.Equal(t, "Inception", f.get("TITLE0"))
	assert.Equal(t, `Tenet "2020"`, f.get("TITLE1"))
	assert.Equal(t, "2010", f.get("YEAR"))
	assert.Equal(t, "false", f.get("ADULT"))
	studio, _ := f.store.Lookup("STUDIO")
	assert.Equal(t, variables.KindJSON, studio.Kind())
	assert.JSONEq(t, `{"name":"WB"}`, string(studio.Raw()))
	assert.Equal(t, "zero-key", f.get("ZERO"))
	for _, k := range []string{"MISSING", "NULL", "NODOC"} {
		_, ok := f.store.Lookup(k)
		assert.False(t, ok, "%s should stay undefined", k)
	}
}

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"method":%q,"auth":%q,"ctype":%q,"body":%q,"q":%q,"results":[{"title":"Inception"}]}`,
				r.Method, r.Header.Get("Authorization"), r.Header.Get("Content-Type"), body, r.URL.Query().Get("q"))
		case "/html":
			fmt.Fprint(w, "<html>not json</html>")
		default:
			http.Error(w, "no such endpoint", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestAPIRequest_Success verifies method, headers, templated body and JSON parsing
func TestAPIRequest_Success(t *testing.T) {
	srv := newAPIServer(t)
	f := newFixture(t, WithHTTPClient(srv.Client()))
	f.store.SetString("INPUT", "inception")
	f.store.SetString("TOKEN", "secret")
	f.store.SetString("API", srv.URL)

	err := f.exec.Execute(context.Background(), recipe.Step{
		Command: recipe.CommandAPIRequest,
		URL:     "$API/search?q=$INPUT",
		Config: recipe.StepConfig{
			Method:  "post",
			Headers: map[string]string{"Authorization": "Bearer $TOKEN"},
			Body:    []byte(`{"query": "$INPUT"}`),
		},
		Output: out("RESPONSE"),
	})
	require.NoError(t, err)

	v, ok := f.store.Lookup("RESPONSE")
	require.True(t, ok)
	require.Equal(t, variables.KindJSON, v.Kind())
	assert.JSONEq(t, `{
		"method": "POST",
		"auth": "Bearer secret",
		"ctype": "application/json",
		"body": "{\"query\":\"inception\"}",
		"q": "inception",
		"results": [{"title": "Inception"}]
	}`, string(v.Raw()))
}

// TestAPIRequest_NotFoundContinues verifies a 404 yields {} and the next step still runs
func TestAPIRequest_NotFoundContinues(t *testing.T) {
	srv := newAPIServer(t)
	f := newFixture(t, WithHTTPClient(srv.Client()))

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandAPIRequest, URL: srv.URL + "/gone", Output: out("RESPONSE")})
	require.ErrorIs(t, err, ErrRequestFailed)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.Contains(t, reqErr.Excerpt, "no such endpoint")

	v, _ := f.store.Lookup("RESPONSE")
	assert.JSONEq(t, `{}`, string(v.Raw()))

	require.NoError(t, f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandStore, Input: "next", Output: out("NEXT")}))
	assert.Equal(t, "next", f.get("NEXT"))
	assert.Contains(t, f.logs.String(), "HTTP 404")
}

// TestAPIRequest_InvalidJSON verifies parse failures yield {}
func TestAPIRequest_InvalidJSON(t *testing.T) {
	srv := newAPIServer(t)
	f := newFixture(t, WithHTTPClient(srv.Client()))

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandAPIRequest, URL: srv.URL + "/html", Output: out("RESPONSE")})

	assert.ErrorIs(t, err, ErrRequestFailed)
	v, _ := f.store.Lookup("RESPONSE")
	assert.JSONEq(t, `{}`, string(v.Raw()))
}

// TestAPIRequest_NetworkFailure verifies transport errors yield {}
func TestAPIRequest_NetworkFailure(t *testing.T) {
	srv := newAPIServer(t)
	url := srv.URL
	srv.Close()
	f := newFixture(t)

	err := f.exec.Execute(context.Background(), recipe.Step{Command: recipe.CommandAPIRequest, URL: url, Output: out("RESPONSE")})

	assert.ErrorIs(t, err, ErrRequestFailed)
	v, _ := f.store.Lookup("RESPONSE")
	assert.JSONEq(t, `{}`, string(v.Raw()))
}

// TestEncodeURIComponent verifies the unreserved set
func TestEncodeURIComponent(t *testing.T) {
	assert.Equal(t, "AZaz09-_.!~*'()", encodeURIComponent("AZaz09-_.!~*'()"))
	assert.Equal(t, "%3F%3D%2B%23", encodeURIComponent("?=+#"))
}

// TestUnescapeRegexInput verifies escaped metacharacters are restored
func TestUnescapeRegexInput(t *testing.T) {
	assert.Equal(t, `a.b*c(d)[e]/f\g`, unescapeRegexInput(`a\.b\*c\(d\)\[e\]\/f\\g`))
	assert.Equal(t, `\d stays`, unescapeRegexInput(`\d stays`))
}

// TestParseCookies verifies cookie header splitting
func TestParseCookies(t *testing.T) {
	cookies := parseCookies("a=1; b = two ;broken; =x", "example.com")

	assert.Equal(t, []page.Cookie{
		{Name: "a", Value: "1", Domain: "example.com"},
		{Name: "b", Value: "two", Domain: "example.com"},
	}, cookies)
}
