package template

// Builtin returns the default template set covering the known bank alert
// formats. Order matters: deposit and payment templates precede the generic
// purchase alerts for the same institution.
func Builtin() []*Template {
	return []*Template{
		{
			ID:             "Huntington Checking/Savings Deposit",
			Version:        1,
			Direction:      DirectionCredit,
			SenderContains: "huntington",
			Fields: map[string]string{
				"account": `CK(\d{4})`,
				"amount":  `deposit[^$]*for \$([0-9][0-9,.]*)`,
				"vendor":  ` from (.*?) to`,
			},
		},
		{
			ID:             "Huntington Checking/Savings",
			Version:        1,
			Direction:      DirectionDebit,
			SenderContains: "huntington",
			Fields: map[string]string{
				"account": `CK(\d{4})`,
				"amount":  `for \$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)\b`,
				"vendor":  ` at (.*?) from`,
				"date":    `as of (\d{1,2}/\d{1,2}/\d{2}\s+\d{1,2}:\d{2}\s+(?:AM|PM)\s+ET)`,
			},
		},
		{
			ID:        "Chase Direct Deposit",
			Version:   1,
			Direction: DirectionCredit,
			Fields: map[string]string{
				"account": `Account ending in[^(]*\(\.\.\.(\d{4})\)`,
				"amount":  `You have a direct deposit of \$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`,
				"vendor":  "fixed:Direct Deposit",
				"date":    `(\d{1,2}/\d{1,2}/\d{4}\s+\d{1,2}:\d{2}\s+(?:AM|PM) ET)`,
			},
		},
		{
			ID:             "Chase Payment Sent",
			Version:        1,
			Direction:      DirectionDebit,
			SubjectPattern: `You sent \$[\d,.]+.*account ending in`,
			Fields: map[string]string{
				"account": `Account ending in[^(]*\(\.\.\.(\d{4})\)`,
				"amount":  `You sent \$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`,
				"vendor":  `You sent \$[\d,.]+\s+to\s+([^\r\n]+)`,
				"date":    `Sent on\s*\r?\n?\s*([^\r\n]+)`,
			},
		},
		{
			ID:             "Chase Transaction Alert",
			Version:        1,
			Direction:      DirectionDebit,
			SubjectPattern: `Your \$[\d,.]+.*transaction with`,
			SubjectVendor:  `transaction with\s+([^\r\n]+)`,
			Fields: map[string]string{
				"account": `\(\.\.\.(\d{4})\)`,
				"amount":  `You made a \$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?) transaction`,
				"vendor":  `transaction with ([^\r\n]+)`,
				"date":    `(\d{1,2}/\d{1,2}/\d{4}\s+\d{1,2}:\d{2}\s+(?:AM|PM) ET)`,
			},
		},
		{
			ID:        "Chase External Transfer",
			Version:   1,
			Direction: DirectionDebit,
			Fields: map[string]string{
				"account": `ending in (\d+)`,
				"amount":  `A \$([0-9,.]+) external transfer`,
				"vendor":  ` to (.*?) on`,
			},
		},
		{
			ID:        "Chase Debit Card",
			Version:   1,
			Direction: DirectionDebit,
			Fields: map[string]string{
				"account": `ending in (\d+)`,
				"amount":  `A \$([0-9,.]+) debit`,
				"vendor":  ` to (.*?) on`,
			},
		},
		{
			ID:             "Discover Transaction Alert",
			Version:        1,
			Direction:      DirectionDebit,
			SenderContains: "discover",
			Fields: map[string]string{
				"account": `Account ending in\s+(\d{4})`,
				"amount":  `Amount: \$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`,
				"vendor":  `Merchant:\s+([^\r\n]+)`,
				"date":    `Transaction Date::?\s*([^\r\n]+)`,
			},
		},
		{
			ID:             "Target Credit Card",
			Version:        1,
			Direction:      DirectionDebit,
			SenderContains: "target",
			Fields: map[string]string{
				"account": `ending in (\d{4})`,
				"amount":  `transaction of \$(\d{1,3}(?:,\d{3})*(?:\.\d+)?) at`,
				"vendor":  `\sat\s(.*?)\s+was`,
			},
		},
		{
			ID:             "US Bank Credit Card",
			Version:        1,
			Direction:      DirectionDebit,
			SenderContains: "usbank",
			Fields: map[string]string{
				"account": `card ending in (\d{4})`,
				"amount":  `charged \$([0-9,.]+)\s+at`,
				"vendor":  `at ([^.]+)\. A`,
			},
		},
		{
			ID:             "Capital One Credit Card",
			Version:        1,
			Direction:      DirectionDebit,
			SenderContains: "capitalone",
			Fields: map[string]string{
				"account": `Account ending in (\d{4})`,
				"amount":  `\$([0-9,.]+) was`,
				"vendor":  ` at (.*?), a`,
			},
		},
	}
}
