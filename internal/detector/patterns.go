package detector

import "regexp"

// Base confidences. Checksum-validated and label-anchored formats sit in the
// strict band; shape-only formats sit in the loose band.
const (
	confChecksum  = 0.97
	confCard      = 0.95
	confEmail     = 0.95
	confLabelled  = 0.92
	confBank      = 0.90
	confStrict    = 0.90
	confPolicy    = 0.88
	confHonorific = 0.85
	confPhone     = 0.85
	confPhoneIntl = 0.80
	confAddress   = 0.80
	confPostcode  = 0.75
	confAmount    = 0.75
	confPhoneUK   = 0.70
	confBarePol   = 0.65
	confNameRun   = 0.60
	confBareDate  = 0.50
)

const (
	months   = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.?`
	dateExpr = `(?:\d{1,2}[/.\-]\d{1,2}[/.\-](?:19|20)?\d{2}|(?:19|20)\d{2}-\d{2}-\d{2}|\d{1,2}(?:st|nd|rd|th)?\s+` + months + `\s+(?:19|20)\d{2}|` + months + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+(?:19|20)\d{2})`
	idLabel  = `\s*(?i:no\.?|number|num|id|#)?\s*[:#]?\s*`
	usStates = `(?:A[LKZR]|C[AOT]|D[EC]|FL|GA|HI|I[DLNA]|K[SY]|LA|M[EDAINSOT]|N[EVHJMYCD]|O[HKR]|PA|RI|S[CD]|T[NX]|UT|V[TA]|W[AVIY])`
	streets  = `(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl|Terrace|Close|Crescent|Square|Sq)`
)

// DefaultMatchers returns the built-in matcher set covering every category.
func DefaultMatchers() []Matcher {
	return []Matcher{
		// name
		&nameMatcher{confidence: confNameRun},
		&honorificNameMatcher{inner: newRegexMatcher(CategoryName,
			regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Mx|Dr|Prof)\.?[ \t]+(`+nameWord+`(?:[ \t]+`+nameWord+`){0,2})`),
			confHonorific, WithGroup(1))},
		&honorificNameMatcher{inner: newRegexMatcher(CategoryName,
			regexp.MustCompile(`\b(?i:full name|name|insured|policyholder|patient|applicant|beneficiary)[ \t]*:[ \t]*(`+nameWord+`(?:[ \t]+`+nameWord+`){0,3})`),
			confLabelled, WithGroup(1))},

		// email
		mustRegexMatcher(CategoryEmail, `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, confEmail),

		// phone
		mustRegexMatcher(CategoryPhone, `(?:\+1[ .\-]?)?(?:\(\d{3}\)[ ]?|\b\d{3}[ .\-])\d{3}[ .\-]\d{4}\b`, confPhone),
		mustRegexMatcher(CategoryPhone, `\+\d{1,3}(?:[ .\-]?\d{2,4}){2,5}\b`, confPhoneIntl, WithValidator(digitCountBetween(8, 15))),
		mustRegexMatcher(CategoryPhone, `\b0\d{2,4}[ \-]?\d{3,4}[ \-]?\d{3,4}\b`, confPhoneUK, WithValidator(digitCountBetween(10, 11))),

		// amount
		mustRegexMatcher(CategoryAmount, `[$£€]\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?`, confAmount),
		mustRegexMatcher(CategoryAmount, `\b(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?\s?(?:USD|EUR|GBP|dollars|euros|pounds)\b`, confAmount),

		// national identifiers
		mustRegexMatcher(CategoryNationalID, `\b\d{3}-\d{2}-\d{4}\b`, confStrict+0.03, WithValidator(ssnValid)),
		mustRegexMatcher(CategoryNationalID, `\b(?i:SSN|social security(?: number)?)\s*[:#]?\s*(\d{9})\b`, confLabelled+0.03, WithGroup(1), WithValidator(ssnValid)),
		mustRegexMatcher(CategoryNationalID, `\b(?i:NHS)`+idLabel+`(\d{3}[ \-]?\d{3}[ \-]?\d{4})\b`, confChecksum, WithGroup(1), WithValidator(nhsValid)),
		mustRegexMatcher(CategoryNationalID, `\b[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z] ?\d{2} ?\d{2} ?\d{2} ?[A-D]\b`, confStrict),
		mustRegexMatcher(CategoryNationalID, `\b(?i:tax id|tax number|TIN|UTR|EIN)\s*[:#]?\s*(\d{2}-?\d{7}|\d{10}|\d{3}-?\d{2}-?\d{4})\b`, confLabelled, WithGroup(1)),

		// bank details
		mustRegexMatcher(CategoryBankDetails, `\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`, confChecksum, WithValidator(ibanValid)),
		mustRegexMatcher(CategoryBankDetails, `\b(?:\d[ \-]?){12,18}\d\b`, confCard, WithValidator(luhnValid)),
		mustRegexMatcher(CategoryBankDetails, `\b(?i:sort code)\s*[:#]?\s*(\d{2}-\d{2}-\d{2})\b`, confBank, WithGroup(1)),
		mustRegexMatcher(CategoryBankDetails, `\b(?i:account|acct)`+idLabel+`(\d{8,12})\b`, confBank, WithGroup(1)),
		mustRegexMatcher(CategoryBankDetails, `\b(?i:routing(?: number)?|ABA)\s*[:#]?\s*(\d{9})\b`, confBank, WithGroup(1)),

		// policy and account references
		mustRegexMatcher(CategoryPolicyID, `\b(?i:policy|account|acct|member|customer|claim|reference|ref)`+idLabel+`([A-Z0-9][A-Z0-9\-/]{4,24})\b`, confPolicy, WithGroup(1), WithValidator(hasDigit)),
		mustRegexMatcher(CategoryPolicyID, `\b[A-Z]{2,4}-?\d{6,10}\b`, confBarePol),

		// dates of birth
		mustRegexMatcher(CategoryDateOfBirth, `\b(?i:DOB|D\.O\.B\.?|date of birth|birth ?date|born(?: on)?)\s*[:\-]?\s*(`+dateExpr+`)`, confLabelled, WithGroup(1)),
		mustRegexMatcher(CategoryDateOfBirth, `\b\d{1,2}/\d{1,2}/(?:19|20)\d{2}\b`, confBareDate),
		mustRegexMatcher(CategoryDateOfBirth, `\b(?:19|20)\d{2}-\d{2}-\d{2}\b`, confBareDate),

		// address
		mustRegexMatcher(CategoryAddress, `\b\d{1,5}[A-Za-z]?[ \t]+(?:\p{Lu}\p{Ll}+[ \t]+){1,4}`+streets+`\b\.?`, confAddress),
		mustRegexMatcher(CategoryAddress, `\b(?i:P\.?\s?O\.?\s?Box)\s+\d+\b`, confAddress),
		mustRegexMatcher(CategoryAddress, `\b[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}\b`, confPostcode),
		mustRegexMatcher(CategoryAddress, `\b`+usStates+`[ \t]+\d{5}(?:-\d{4})?\b`, confPostcode),
	}
}
