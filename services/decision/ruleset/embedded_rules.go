// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
This file bridges the build system and the runtime rule engine. It uses the Go
embed package to bake claim_rules.yaml directly into the compiled binary, so
the default rule thresholds and documentation tiers are immutable at runtime
and travel with the executable. Deployments may still layer an on-disk
override file on top via Watch.
*/

package ruleset

import (
	_ "embed"
)

// ClaimRules holds the raw byte content of the 'claim_rules.yaml' file.
//
// Populated at compile time via the Go 'embed' directive. Pass these bytes
// directly to Parse (or yaml.Unmarshal) to obtain the default rule
// configuration.
//
//go:embed claim_rules.yaml
var ClaimRules []byte
