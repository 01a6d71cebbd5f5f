// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package clients contains the HTTP clients for every upstream data source
// the copilot fans out to: the CMMS, the retrieval gateway, the embedding
// endpoint, and the vector store. Each client owns exactly one upstream
// and exposes typed requests and responses; payload shaping for the model
// happens in the tools package, not here.
package clients

import "fmt"

// UpstreamError is returned for any non-2xx upstream response. The tools
// layer converts it into the structured {error, status} payload the model
// sees; it never surfaces to the HTTP caller directly.
type UpstreamError struct {
	Service string
	Status  int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}
