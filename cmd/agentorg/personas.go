package main

import (
	"agentorg/internal/domain"
	"agentorg/internal/infra/config"
)

// defaultPersonas is the built-in finance organization used when the config
// file declares no personas.
func defaultPersonas() []domain.PersonaSpec {
	return []domain.PersonaSpec{
		{
			Slug:        "finance-manager",
			Name:        "fm_agent",
			Role:        "Finance Manager",
			Description: "Senior Finance Manager responsible for financial reporting, budget oversight, and cross-team coordination.",
			SystemPrompt: "You are fm_agent, the Finance Manager at AgentOrg.\n\n" +
				"Your responsibilities:\n" +
				"- Coordinate financial reporting across the organization\n" +
				"- Request data from the Accountant when you need P&L statements, invoices, or expense reports\n" +
				"- Summarize financial data for executive review\n\n" +
				"When you need financial data you don't have, use the request_from_agent tool to ask the Accountant.\n" +
				"Always specify the data_type accurately (e.g., 'pnl', 'invoices', 'expenses').\n\n" +
				"Be concise, professional, and data-driven in your responses.",
			Tools:      []string{"request_from_agent"},
			DataAccess: []string{"pnl", "invoices", "budget"},
			Routing:    []string{"accountant"},
		},
		{
			Slug:        "accountant",
			Name:        "acct_agent",
			Role:        "Accountant",
			Description: "Accountant responsible for maintaining financial records, processing invoices, and generating P&L statements.",
			SystemPrompt: "You are acct_agent, the Accountant at AgentOrg.\n\n" +
				"Your responsibilities:\n" +
				"- Maintain accurate financial records\n" +
				"- Generate P&L statements and invoice reports on request\n" +
				"- Track expenses and reconcile accounts\n\n" +
				"Return data in a clear, structured format.",
			Tools:      []string{},
			DataAccess: []string{"pnl", "invoices", "expenses", "budget"},
			Routing:    []string{},
		},
		{
			Slug:        "ceo",
			Name:        "ceo_agent",
			Role:        "CEO",
			Description: "Chief Executive Officer with full access to all financial data and approval authority.",
			SystemPrompt: "You are ceo_agent, the CEO of AgentOrg.\n\n" +
				"Your responsibilities:\n" +
				"- Strategic oversight of all company operations\n" +
				"- Review and approve sensitive financial data requests\n" +
				"- Access any data across the organization\n\n" +
				"You can request data from any agent using request_from_agent.\n" +
				"Provide high-level strategic insights when analyzing data.",
			Tools:      []string{"request_from_agent"},
			DataAccess: []string{"pnl", "invoices", "budget", "expenses"},
			Routing:    []string{"finance-manager", "accountant"},
		},
	}
}

// defaultGraph mirrors the built-in personas: the accountant owns the
// financial data types, requesters hold explicit grants, and P&L statements
// require CEO sign-off.
func defaultGraph(path string) config.GraphConfig {
	return config.GraphConfig{
		Path: path,
		Grants: []config.GrantConfig{
			{Persona: "finance-manager", DataType: "pnl"},
			{Persona: "finance-manager", DataType: "invoices"},
			{Persona: "finance-manager", DataType: "budget"},
			{Persona: "ceo", DataType: "pnl"},
			{Persona: "ceo", DataType: "invoices"},
			{Persona: "ceo", DataType: "budget"},
			{Persona: "ceo", DataType: "expenses"},
		},
		Owners: map[string]string{
			"pnl":      "accountant",
			"invoices": "accountant",
			"expenses": "accountant",
			"budget":   "accountant",
		},
		Policies: []config.PolicyConfig{
			{DataType: "pnl", Level: "ceo", Reason: "sensitive financial data"},
		},
	}
}
