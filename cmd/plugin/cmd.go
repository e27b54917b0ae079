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

package plugin

import (
	"github.com/spf13/cobra"

	"github.com/picodata/pike/cmd/plugin/pack"
)

var Cmd = &cobra.Command{
	Use:   "plugin",
	Short: "Work with picodata plugin projects",
	Long:  `Work with picodata plugin projects`,
}

func init() {
	Cmd.AddCommand(pack.Cmd)
}
