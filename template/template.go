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

// Package template renders the liquid templates used in topology environment
// sections, e.g. "127.0.0.1:{{ instance_id | plus: 3300 }}".
package template

import (
	"github.com/osteele/liquid"
	"github.com/pkg/errors"
)

type Renderer struct {
	engine *liquid.Engine
}

func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

func (r *Renderer) Render(source string, bindings map[string]any) (string, error) {
	out, err := r.engine.ParseAndRenderString(source, bindings)
	if err != nil {
		return "", errors.Wrapf(err, "failed to render template %q", source)
	}
	return out, nil
}

// RenderAll renders every value of templates with the same bindings.
func (r *Renderer) RenderAll(templates map[string]string, bindings map[string]any) (map[string]string, error) {
	rendered := make(map[string]string, len(templates))
	for name, source := range templates {
		value, err := r.Render(source, bindings)
		if err != nil {
			return nil, errors.Wrapf(err, "variable %s", name)
		}
		rendered[name] = value
	}
	return rendered, nil
}
