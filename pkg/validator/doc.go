// Package validator provides composable, deferred validation rules.
//
//	err := validator.Apply(
//		validator.Required("email", email),
//		validator.ValidEmail("email", email),
//		validator.When(minLen > 0, validator.MinLen("password", password, minLen)),
//	)
//	if validator.IsValidationError(err) {
//		// render 400 with validator.ExtractValidationErrors(err).Fields()
//	}
package validator
