package secrets

// DefaultRules returns the credential and personal-identifier rules applied
// to prompts. Audit descriptions are free text typed by people, so the
// identifier rules target Russian formats (INN, SNILS, passport, accounts).
func DefaultRules() []Rule {
	return []Rule{
		// Credentials
		{
			ID:          "private-key",
			Description: "Private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    "high",
		},
		{
			ID:          "generic-secret",
			Description: "Assigned password or secret",
			Pattern:     `(?i)(?:secret|password|passwd|pwd|пароль)\s*[:=]\s*['"]?[^\s'"]{6,}['"]?`,
			Keywords:    []string{"secret", "password", "passwd", "pwd", "пароль"},
			Severity:    "high",
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{20,}`,
			Severity:    "high",
		},
		{
			ID:          "openrouter-api-key",
			Description: "OpenRouter API key",
			Pattern:     `sk-or-v1-[A-Za-z0-9]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9]{32,}`,
			Severity:    "high",
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
			Severity:    "medium",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
		{
			ID:          "database-url",
			Description: "Connection URL with credentials",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb|redis|amqp|sqlserver)://[^:\s]+:[^@\s]+@\S+`,
			Severity:    "high",
		},

		// Personal identifiers
		{
			ID:          "email",
			Description: "E-mail address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
			Severity:    "medium",
		},
		{
			ID:          "phone-ru",
			Description: "Russian phone number",
			Pattern:     `(?:\+7|\b8)[\s\-(]*\d{3}[\s\-)]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}\b`,
			Severity:    "medium",
		},
		{
			ID:          "inn",
			Description: "Taxpayer number (INN)",
			Pattern:     `(?i)ИНН\s*:?\s*\d{10}(?:\d{2})?\b`,
			Keywords:    []string{"ИНН"},
			Severity:    "medium",
		},
		{
			ID:          "snils",
			Description: "Insurance number (SNILS)",
			Pattern:     `\b\d{3}-\d{3}-\d{3}[\s\-]\d{2}\b`,
			Severity:    "medium",
		},
		{
			ID:          "passport-ru",
			Description: "Passport series and number",
			Pattern:     `(?i)паспорт\S*\s*(?:серия\s*)?\d{2}\s?\d{2}\s*(?:№|номер|N)?\s*\d{6}`,
			Keywords:    []string{"паспорт"},
			Severity:    "high",
		},
		{
			ID:          "bank-account",
			Description: "Bank account number",
			Pattern:     `\b\d{20}\b`,
			Keywords:    []string{"счет", "счёт", "р/с", "account"},
			Severity:    "medium",
		},
		{
			ID:          "card-number",
			Description: "Payment card number",
			Pattern:     `\b(?:\d{4}[ \-]?){3}\d{4}\b`,
			Severity:    "high",
		},
	}
}
