// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// The request types carry custom binding tags; registering here ties the
// tags to the package that binds them.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("copilotmode", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case datatypes.ModeTechnician, datatypes.ModeCustomerPortal:
				return true
			}
			return false
		})
	}
}
