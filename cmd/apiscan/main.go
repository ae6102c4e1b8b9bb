// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command apiscan discovers HTTP API endpoints in a codebase by static
// analysis, without running the application.
//
// Supported frameworks:
//   - Java: Spring MVC, JAX-RS
//   - Python: Flask, FastAPI
//   - NodeJS: Express (JavaScript and TypeScript)
//
// Usage:
//
//	apiscan scan ./path/to/repo
//	apiscan scan https://github.com/org/repo.git -f markdown -o endpoints.md
//	apiscan scan ./api --include-verbs GET,POST --no-auth
package main

func main() {
	Execute()
}
