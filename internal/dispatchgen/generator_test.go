package dispatchgen

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serr "github.com/metrosim/substrate/internal/errors"
	"github.com/metrosim/substrate/internal/kay"
)

func TestTag_MatchesRuntimeHash(t *testing.T) {
	for _, name := range []string{"Ping", "Pong", "TrafficUpdate"} {
		assert.Equal(t, uint32(kay.TagOf(name)), Tag(name))
	}
}

func TestRender_Deterministic(t *testing.T) {
	model := Model{
		PackageName: "pingpong",
		Actors: []ActorModel{
			{Name: "Pinger", Handlers: []HandlerModel{{MessageName: "Pong", Tag: Tag("Pong")}}},
			{Name: "Ponger", Handlers: []HandlerModel{{MessageName: "Ping", Tag: Tag("Ping")}}},
		},
	}

	first, err := Render(model)
	require.NoError(t, err)
	second, err := Render(model)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Contains(t, first, "package pingpong")
	assert.Contains(t, first, "TagPing kay.MessageTag = 0x7fb7f0a9")
	assert.Contains(t, first, "TagPong kay.MessageTag = 0xe1baadd7")
	assert.Contains(t, first, `table.RegisterActorType("Ponger")`)
	assert.Contains(t, first, "recipient.(*Ponger).HandlePing(&m)")
	assert.Contains(t, first, "compact.FromImageOf[Pong](msg.Image)")
}

func TestRender_MatchesCheckedInOutput(t *testing.T) {
	model := Model{
		PackageName: "pingpong",
		Actors: []ActorModel{
			{Name: "Pinger", Handlers: []HandlerModel{{MessageName: "Pong", Tag: Tag("Pong")}}},
			{Name: "Ponger", Handlers: []HandlerModel{{MessageName: "Ping", Tag: Tag("Ping")}}},
		},
	}

	rendered, err := Render(model)
	require.NoError(t, err)

	checkedIn, err := os.ReadFile(filepath.Join("..", "pingpong", GeneratedFileName))
	require.NoError(t, err)
	assert.Equal(t, string(checkedIn), rendered)
}

func TestGenerate_RejectsUnhandledMarkedMessage(t *testing.T) {
	_, err := Generate(GenOptions{
		SourcePatterns: []string{"./testdata/unhandled"},
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, serr.ErrMissingHandler))
}

func TestGenerate_ScansPingPong(t *testing.T) {
	code, err := Generate(GenOptions{
		SourcePatterns: []string{"github.com/metrosim/substrate/internal/pingpong"},
	})
	require.NoError(t, err)

	checkedIn, err := os.ReadFile(filepath.Join("..", "pingpong", GeneratedFileName))
	require.NoError(t, err)
	assert.Equal(t, string(checkedIn), code)
}
