package jerror

// Code is a stable machine-readable error identifier.
type Code string

// Cookie codec and jar codes.
const (
	CookieInvalidName                 Code = "jetta-cookie-invalid-name"
	CookieInvalidNameValuePair        Code = "jetta-cookie-invalid-name-value-pair"
	CookieInvalidValue                Code = "jetta-cookie-invalid-value"
	CookieInvalidExpires              Code = "jetta-cookie-invalid-expires"
	CookieInvalidMaxAge               Code = "jetta-cookie-invalid-max-age"
	CookieExpired                     Code = "jetta-cookie-expired"
	CookieInvalidDomain               Code = "jetta-cookie-invalid-domain"
	CookieInvalidPath                 Code = "jetta-cookie-invalid-path"
	CookieInvalidSecure               Code = "jetta-cookie-invalid-secure"
	CookieInvalidHttpOnly             Code = "jetta-cookie-invalid-httponly"
	CookieHttpOnlyFromNonHttpAPI      Code = "jetta-cookie-httponly-from-non-http-api"
	CookieSecureAttributeNotSecureEnv Code = "jetta-cookie-set-secure-attribute-not-secure-env"
	CookieSecurePrefixNotSecureEnv    Code = "jetta-cookie-set-secure-prefix-not-secure-env"
	CookieSecurePrefixMissingSecure   Code = "jetta-cookie-set-secure-prefix-missing-secure-attribute"
	CookieHostPrefixNotSecureEnv      Code = "jetta-cookie-set-host-prefix-not-secure-env"
	CookieHostPrefixMissingSecure     Code = "jetta-cookie-set-host-prefix-missing-secure-attribute"
	CookieHostPrefixNoDomain          Code = "jetta-cookie-set-host-prefix-no-domain"
	CookieHostPrefixPathNotRoot       Code = "jetta-cookie-set-host-prefix-path-not-root"
	CookieHostnameNotInEnv            Code = "jetta-cookie-hostname-not-in-env"
	CookieHostnameIsPublicSuffix      Code = "jetta-cookie-hostname-is-public-suffix"
	CookiePublicSuffixError           Code = "jetta-cookie-public-suffix-error"
	CookieNoValidDomainForUse         Code = "jetta-cookie-no-valid-domain-for-use"
	CookieCrossSiteOnSameSite         Code = "jetta-cookie-cross-site-on-samesite-cookie"
	CookieNoThirdPartyCookiesAllowed  Code = "jetta-cookie-no-third-party-cookies-allowed"
	CookieNonHttpNoOverwriteHttpOnly  Code = "jetta-cookie-non-http-no-overwrite-httponly"
	CookieInvalidURL                  Code = "jetta-cookie-invalid-url"
	CookieExceededMaxByteLength       Code = "jetta-cookie-exceeded-max-cookie-byte-length"
	CookieTopLevelURLInvalid          Code = "jetta-cookie-top-level-url-invalid"
	CookieRequestURLInvalid           Code = "jetta-cookie-request-url-invalid"
	CookieInvalidSnapshot             Code = "jetta-cookie-invalid-snapshot"
	CookieImportFailed                Code = "jetta-cookie-import-failed"
)

// Public suffix list codes.
const (
	PublicSuffixNotReady                 Code = "jetta-public-suffix-not-ready"
	PublicSuffixFailedToUpdateNoSources  Code = "jetta-public-suffix-failed-to-update-no-sources"
	PublicSuffixFailedToUpdateFromSource Code = "jetta-public-suffix-failed-to-update-from-sources"
	PublicSuffixFailedToWriteFile        Code = "jetta-public-suffix-failed-to-write-file"
	PublicSuffixInvalidList              Code = "jetta-public-suffix-invalid-list"
)

// Request engine codes.
const (
	RequestTooManyRedirects              Code = "jetta-request-too-many-redirects"
	RequestBadResponseCode               Code = "jetta-request-bad-response-code"
	RequestChecksumVerificationFailed    Code = "jetta-request-checksum-verification-failed"
	RequestChecksumOnEncodedData         Code = "jetta-request-checksum-on-encoded-data"
	RequestInvalidChecksumAlgorithm      Code = "jetta-request-invalid-checksum-algorithm"
	RequestExceededDataLimitContentLen   Code = "jetta-request-exceeded-data-limit-content-length"
	RequestExceededDataLimitActual       Code = "jetta-request-exceeded-data-limit-actual"
	RequestExceededDecompressedLimit     Code = "jetta-request-exceeded-decompressed-data-limit"
	RequestDecompressFailed              Code = "jetta-request-decompress-failed"
	RequestEncodingNotAllowed            Code = "jetta-request-encoding-not-allowed"
	RequestResponseExceededContentLength Code = "jetta-request-response-exceeded-content-length"
	RequestResponseTimedOutDuring        Code = "jetta-request-response-timed-out-during"
	RequestTimedOutInitial               Code = "jetta-request-timed-out-initial"
	RequestResponseError                 Code = "jetta-request-response-error"
	RequestCookieManagerSetupError       Code = "jetta-request-cookie-manager-setup-error"
	RequestStreamNotReadable             Code = "jetta-request-stream-not-readable"
	RequestInvalidURL                    Code = "jetta-request-invalid-url"
	RequestUnsupportedProtocol           Code = "jetta-request-unsupported-protocol"
	RequestServerAborted                 Code = "jetta-request-server-aborted"
	RequestAborted                       Code = "jetta-request-aborted"
	RequestError                         Code = "jetta-request-error"
	RequestStreamError                   Code = "jetta-request-stream-error"
	RequestErrorSettingCookie            Code = "jetta-request-error-setting-cookie"
	RequestErrorProcessingCookieHeader   Code = "jetta-request-error-processing-cookie-header"
	RequestWriteFileStreamError          Code = "jetta-request-write-file-stream-error"
	RequestURLDecodeError                Code = "jetta-request-url-decode-uri-component-error"
	RequestFileStatError                 Code = "jetta-request-file-stat-error"
	RequestFileReadError                 Code = "jetta-request-file-read-error"
	RequestInvalidDataURL                Code = "jetta-request-invalid-value-for-data-protocol"
	RequestInvalidFileURL                Code = "jetta-request-invalid-file-url"
	RequestJSONParseError                Code = "jetta-request-json-parse-error"
	RequestInvalidOptions                Code = "jetta-request-invalid-options"
)

type codeInfo struct {
	kind    Kind
	message string
}

var codes = map[Code]codeInfo{
	CookieInvalidName:                 {KindValidation, "The cookie's name is invalid"},
	CookieInvalidNameValuePair:        {KindValidation, "The cookie does not have a valid name-value pair"},
	CookieInvalidValue:                {KindValidation, "The cookie's value is invalid"},
	CookieInvalidExpires:              {KindValidation, "The cookie does not have a valid date for Expires"},
	CookieInvalidMaxAge:               {KindValidation, "The cookie does not have a valid number of seconds for Max-Age"},
	CookieExpired:                     {KindValidation, "The cookie attribute is expired while expired cookies are not allowed"},
	CookieInvalidDomain:               {KindValidation, "The cookie's domain is invalid"},
	CookieInvalidPath:                 {KindValidation, "The cookie's path is invalid"},
	CookieInvalidSecure:               {KindValidation, "Secure must be a bare flag without a value"},
	CookieInvalidHttpOnly:             {KindValidation, "HttpOnly must be a bare flag without a value"},
	CookieHttpOnlyFromNonHttpAPI:      {KindPolicy, "The cookie's HttpOnly flag has been set, but has been received via a non HTTP API"},
	CookieSecureAttributeNotSecureEnv: {KindPolicy, "Cookie has Secure flag, but not set in secure environment"},
	CookieSecurePrefixNotSecureEnv:    {KindPolicy, "Cookie is prefixed with '__Secure-', but not set in secure environment"},
	CookieSecurePrefixMissingSecure:   {KindPolicy, "Cookie is prefixed with '__Secure-', but is missing the Secure flag"},
	CookieHostPrefixNotSecureEnv:      {KindPolicy, "Cookie is prefixed with '__Host-', but not set in secure environment"},
	CookieHostPrefixMissingSecure:     {KindPolicy, "Cookie is prefixed with '__Host-', but is missing the Secure flag"},
	CookieHostPrefixNoDomain:          {KindPolicy, "Cookie is prefixed with '__Host-', thus Domain must not be specified"},
	CookieHostPrefixPathNotRoot:       {KindPolicy, "Cookie is prefixed with '__Host-', thus Path must be set to '/'"},
	CookieHostnameNotInEnv:            {KindPolicy, "Cookie's domain is not in the request's domain"},
	CookieHostnameIsPublicSuffix:      {KindPolicy, "Cookie's domain is a public suffix while the request's domain is not"},
	CookiePublicSuffixError:           {KindNotReady, "The public suffix checker raised an error"},
	CookieNoValidDomainForUse:         {KindValidation, "Cookie does not have a Domain and the given request URL is invalid"},
	CookieCrossSiteOnSameSite:         {KindPolicy, "Can't accept a cross-site cookie with a SameSite attribute"},
	CookieNoThirdPartyCookiesAllowed:  {KindPolicy, "A third-party cookie was received while third-party cookies are blocked"},
	CookieNonHttpNoOverwriteHttpOnly:  {KindPolicy, "Cookie received via non HTTP API cannot overwrite a cookie set with HttpOnly"},
	CookieInvalidURL:                  {KindValidation, "Invalid URL for a cookie"},
	CookieExceededMaxByteLength:       {KindLimit, "The cookie exceeds the maximum cookie byte length"},
	CookieTopLevelURLInvalid:          {KindValidation, "The top-level URL is invalid"},
	CookieRequestURLInvalid:           {KindValidation, "The request URL is invalid"},
	CookieInvalidSnapshot:             {KindValidation, "The cookie jar snapshot is invalid"},
	CookieImportFailed:                {KindIO, "Failed to import cookies"},

	PublicSuffixNotReady:                 {KindNotReady, "Public suffix is not ready"},
	PublicSuffixFailedToUpdateNoSources:  {KindNotReady, "Public suffix failed to update - no sources to pull from"},
	PublicSuffixFailedToUpdateFromSource: {KindNotReady, "Public suffix failed to update from sources"},
	PublicSuffixFailedToWriteFile:        {KindIO, "Public suffix failed to write its cache file"},
	PublicSuffixInvalidList:              {KindValidation, "Public suffix list is empty or invalid"},

	RequestTooManyRedirects:              {KindLimit, "Request received too many redirects"},
	RequestBadResponseCode:               {KindTransport, "Request received bad response code"},
	RequestChecksumVerificationFailed:    {KindIntegrity, "Request's checksum verification failed - the file may have been corrupted or tampered with"},
	RequestChecksumOnEncodedData:         {KindValidation, "Request asked for a checksum on content-encoded data that cannot be decoded"},
	RequestInvalidChecksumAlgorithm:      {KindValidation, "Request asked for an unsupported checksum algorithm"},
	RequestExceededDataLimitContentLen:   {KindLimit, "Request's Content-Length header was larger than the request data limit"},
	RequestExceededDataLimitActual:       {KindLimit, "Request's data received was larger than the request data limit"},
	RequestExceededDecompressedLimit:     {KindLimit, "Request's decompressed data was larger than the decompressed data limit"},
	RequestDecompressFailed:              {KindTransport, "Failed to decompress the request's data"},
	RequestEncodingNotAllowed:            {KindPolicy, "Response used a content encoding the request did not accept"},
	RequestResponseExceededContentLength: {KindLimit, "Request's data exceeded its Content-Length header value"},
	RequestResponseTimedOutDuring:        {KindTimeout, "Request timed out between receiving data"},
	RequestTimedOutInitial:               {KindTimeout, "Request timed out before a response was sent from the server"},
	RequestResponseError:                 {KindTransport, "Request received an error on the response"},
	RequestCookieManagerSetupError:       {KindNotReady, "Request could not complete because the cookie jar failed to set up"},
	RequestStreamNotReadable:             {KindValidation, "Request received a body stream that is not readable"},
	RequestInvalidURL:                    {KindValidation, "Request received an invalid URL"},
	RequestUnsupportedProtocol:           {KindValidation, "Request does not have a transport for the protocol"},
	RequestServerAborted:                 {KindTransport, "Request was aborted by the server"},
	RequestAborted:                       {KindTransport, "Request was cancelled"},
	RequestError:                         {KindTransport, "Request received an error"},
	RequestStreamError:                   {KindTransport, "Request received an error from its body stream"},
	RequestErrorSettingCookie:            {KindPolicy, "Request received an error setting a cookie"},
	RequestErrorProcessingCookieHeader:   {KindPolicy, "Request received an error processing the cookie header"},
	RequestWriteFileStreamError:          {KindIO, "Request received an error while writing a file"},
	RequestURLDecodeError:                {KindValidation, "Request received an error decoding the URL"},
	RequestFileStatError:                 {KindIO, "Request received an error reading stats on file"},
	RequestFileReadError:                 {KindIO, "Request received an error reading file"},
	RequestInvalidDataURL:                {KindValidation, "Request received an invalid value while parsing data:"},
	RequestInvalidFileURL:                {KindValidation, "Request received an invalid file: URL"},
	RequestJSONParseError:                {KindValidation, "Request's data is not valid JSON"},
	RequestInvalidOptions:                {KindValidation, "Request received invalid options"},
}

// Kind returns the kind registered for c.
func (c Code) Kind() Kind {
	return codes[c].kind
}

// Message returns the English message registered for c.
func (c Code) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Unknown error"
}
