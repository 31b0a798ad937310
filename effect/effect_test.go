package effect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/machina-io/machina/effect"
)

func TestEffectKinds(t *testing.T) {
	assert.Equal(t, effect.KindLog, effect.Log{}.EffectKind())
	assert.Equal(t, effect.KindScheduleTimeout, effect.ScheduleTimeout{}.EffectKind())
	assert.Equal(t, effect.KindCancelTimeout, effect.CancelTimeout{}.EffectKind())
	assert.Equal(t, effect.KindPersistNow, effect.PersistNow{}.EffectKind())
}
