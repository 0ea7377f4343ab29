// SPDX-FileCopyrightText: 2023 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package yaml

import "gopkg.in/yaml.v3"

// Marshal encodes a configuration into a YAML document. It is used to
// dump the configuration after defaults and overrides are applied.
func Marshal(in any) ([]byte, error) {
	return yaml.Marshal(in)
}
