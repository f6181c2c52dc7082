package msgcat

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/YassineElZaart/learn-chess/internal/domain"
)

func TestEmbeddedCoversClientErrors(t *testing.T) {
    c, err := New("")
    require.NoError(t, err)
    for _, code := range []domain.Error{
        domain.ErrSessionNotFound, domain.ErrGameNotWaiting, domain.ErrGameNotInProgress,
        domain.ErrNotYourTurn, domain.ErrSessionFull, domain.ErrAlreadySeated,
        domain.ErrNotAPlayer, domain.ErrNoMovesToUndo, domain.ErrNoPendingOffer,
        domain.ErrConcurrentUpdate, domain.ErrIllegalMove, domain.ErrAmbiguousMove,
        domain.ErrMalformedCommand, domain.ErrInvalidPosition, domain.ErrTakebackDiverged,
        domain.ErrInternal,
    } {
        require.NotEmpty(t, c.ErrorMessage(code), code)
    }
    require.Empty(t, c.ErrorMessage("no_such_code"))
}

func TestOverrideDir(t *testing.T) {
    c, err := New("testdata/override")
    require.NoError(t, err)
    require.Equal(t, "Wait for your opponent.", c.ErrorMessage(domain.ErrNotYourTurn))
    require.Equal(t, "It is not your turn.", func() string {
        d, _ := New("")
        return d.ErrorMessage(domain.ErrNotYourTurn)
    }())
    require.NotEmpty(t, c.ErrorMessage(domain.ErrIllegalMove))
}

func TestOverrideDuplicateKey(t *testing.T) {
    dir := t.TempDir()
    body := []byte("errors:\n  illegal_move: \"x\"\n")
    require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644))
    require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644))
    _, err := New(dir)
    require.ErrorContains(t, err, "duplicate override key")
}

func TestRender(t *testing.T) {
    c, err := New("")
    require.NoError(t, err)
    s, err := c.Render("events.move_made", map[string]string{"Name": "Alice", "Move": "e4"})
    require.NoError(t, err)
    require.Equal(t, "Alice played e4.", s)

    _, err = c.Render("events.move_made", map[string]string{"Name": "Alice"})
    require.Error(t, err)
    _, err = c.Render("events.unknown", nil)
    require.Error(t, err)
}
