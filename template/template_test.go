// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r := NewRenderer()

	for _, test := range []struct {
		source     string
		instanceID int
		expected   string
	}{
		{"127.0.0.1:{{ instance_id | plus: 3300 }}", 1, "127.0.0.1:3301"},
		{"127.0.0.1:{{ instance_id | plus: 3300 }}", 4, "127.0.0.1:3304"},
		{"0.0.0.0:{{ instance_id | times: 10 | plus: 8000 }}", 2, "0.0.0.0:8020"},
		{"i{{ instance_id }}", 7, "i7"},
		{"plain", 1, "plain"},
	} {
		t.Run(test.source, func(t *testing.T) {
			out, err := r.Render(test.source, map[string]any{"instance_id": test.instanceID})
			require.NoError(t, err)
			assert.Equal(t, test.expected, out)
		})
	}
}

func TestRenderAll(t *testing.T) {
	r := NewRenderer()

	out, err := r.RenderAll(map[string]string{
		"PICODATA_IPROTO_LISTEN": "127.0.0.1:{{ instance_id | plus: 3300 }}",
		"PICODATA_LOG_LEVEL":     "info",
	}, map[string]any{"instance_id": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PICODATA_IPROTO_LISTEN": "127.0.0.1:3301",
		"PICODATA_LOG_LEVEL":     "info",
	}, out)
}

func TestRenderInvalid(t *testing.T) {
	_, err := NewRenderer().Render("{% if instance_id %}unterminated", map[string]any{"instance_id": 1})
	assert.Error(t, err)
}
