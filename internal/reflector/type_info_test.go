package reflector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type ticketOpened struct{}

const pkg = "github.com/Broccode/acci-eaf-sub010/internal/reflector"

func TestTypeName(t *testing.T) {
	require.Equal(t, pkg+".ticketOpened", TypeName(ticketOpened{}))
	require.Equal(t, pkg+".ticketOpened", TypeName(&ticketOpened{}))
	require.Equal(t, pkg+".ticketOpened", TypeNameFor[ticketOpened]())
	require.Equal(t, pkg+".ticketOpened", TypeNameFor[*ticketOpened]())

	// cached lookups return the same answer
	require.Equal(t, TypeName(ticketOpened{}), TypeName(ticketOpened{}))
}

func TestTypeName_Unnamed(t *testing.T) {
	require.Empty(t, TypeName(nil))
	require.Empty(t, TypeName(struct{ A int }{}))
	require.Equal(t, "string", TypeName("x"))
}
