package i18n

import "golang.org/x/text/language"

// Message keys. Keys are stable; texts may change.
const (
	MsgMinLength           = "validation.min_length"
	MsgInvalidDate         = "validation.invalid_date"
	MsgUnderage            = "validation.underage"
	MsgInvalidEmail        = "validation.invalid_email"
	MsgPasswordMismatch    = "validation.password_mismatch"
	MsgIdentifierTaken     = "validation.identifier_taken"
	MsgAvailabilityUnknown = "validation.availability_unknown"

	MsgAlertFieldValidation    = "alert.field_validation"
	MsgAlertUniqueness         = "alert.uniqueness_conflict"
	MsgAlertIdentityCreation   = "alert.identity_creation_failed"
	MsgAlertProfilePersistence = "alert.profile_persistence_failed"
	MsgAlertOrphanRetained     = "alert.profile_persistence_failed.retained"
	MsgAlertSessionResolution  = "alert.session_resolution"
	MsgAlertSignIn             = "alert.sign_in_failed"

	MsgHeaderNoProfile = "header.no_profile"
	MsgHeaderLoadError = "header.load_error"
)

var entries = map[string]map[language.Tag]string{
	MsgMinLength: {
		language.English: "Must be at least %d characters.",
		language.Spanish: "Debe tener al menos %d caracteres.",
	},
	MsgInvalidDate: {
		language.English: "Enter a valid date (YYYY-MM-DD).",
		language.Spanish: "Introduce una fecha válida (AAAA-MM-DD).",
	},
	MsgUnderage: {
		language.English: "You must be at least %d years old.",
		language.Spanish: "Debes ser mayor de %d años.",
	},
	MsgInvalidEmail: {
		language.English: "Enter a valid email address.",
		language.Spanish: "Introduce un correo electrónico válido.",
	},
	MsgPasswordMismatch: {
		language.English: "Passwords do not match.",
		language.Spanish: "Las contraseñas no coinciden.",
	},
	MsgIdentifierTaken: {
		language.English: "This identifier is already taken.",
		language.Spanish: "Este identificador ya está en uso.",
	},
	MsgAvailabilityUnknown: {
		language.English: "Could not check availability. Try again.",
		language.Spanish: "No se pudo comprobar la disponibilidad. Inténtalo de nuevo.",
	},
	MsgAlertFieldValidation: {
		language.English: "Some fields need your attention.",
		language.Spanish: "Revisa los campos marcados.",
	},
	MsgAlertUniqueness: {
		language.English: "That identifier is taken. Choose another one.",
		language.Spanish: "Ese identificador ya existe. Elige otro.",
	},
	MsgAlertIdentityCreation: {
		language.English: "We could not create your account. Check your email and password and try again.",
		language.Spanish: "No pudimos crear tu cuenta. Revisa tu correo y contraseña e inténtalo de nuevo.",
	},
	MsgAlertProfilePersistence: {
		language.English: "We could not save your profile and your account was not created. Please register again.",
		language.Spanish: "No pudimos guardar tu perfil y tu cuenta no se creó. Vuelve a registrarte.",
	},
	MsgAlertOrphanRetained: {
		language.English: "Your account was created but your profile was not saved. Retry saving your profile, or contact support if it keeps failing.",
		language.Spanish: "Tu cuenta se creó pero tu perfil no se guardó. Vuelve a intentar guardar tu perfil o contacta con soporte si sigue fallando.",
	},
	MsgAlertSessionResolution: {
		language.English: "We could not load your session. Try again in a moment.",
		language.Spanish: "No pudimos cargar tu sesión. Inténtalo de nuevo en un momento.",
	},
	MsgAlertSignIn: {
		language.English: "Incorrect email or password.",
		language.Spanish: "Correo o contraseña incorrectos.",
	},
	MsgHeaderNoProfile: {
		language.English: "No profile",
		language.Spanish: "Sin perfil",
	},
	MsgHeaderLoadError: {
		language.English: "Profile unavailable",
		language.Spanish: "Perfil no disponible",
	},
}
