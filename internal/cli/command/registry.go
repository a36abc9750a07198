package command

// Registry returns the REPL command set keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service: "mode",
			Action:  "set",
			Summary: "choose how jobs are paid for",
			Fields: []Field{
				{Name: "mode", Prompt: "Payment mode (prepaid/postpaid)", Type: FieldString, Required: true},
				{Name: "user", Aliases: []string{"u"}, Prompt: "User name", Type: FieldString},
			},
		},
		{
			Service: "mode",
			Action:  "show",
			Summary: "show the current payment mode",
		},
		{
			Service: "credits",
			Action:  "show",
			Summary: "show the prepaid balance",
		},
		{
			Service: "credits",
			Action:  "add",
			Summary: "add credits to the prepaid balance",
			Fields: []Field{
				{Name: "amount", Prompt: "Credits to add", Type: FieldFloat, Required: true},
			},
		},
		{
			Service: "usage",
			Action:  "show",
			Summary: "show the postpaid usage report",
		},
		{
			Service: "usage",
			Action:  "clear",
			Summary: "clear the usage log after payment",
			Fields: []Field{
				{Name: "confirm", Aliases: []string{"y"}, Prompt: "Clear the usage history? (y/n)", Type: FieldString, Required: true},
			},
		},
		{
			Service: "quota",
			Action:  "show",
			Summary: "show the remaining session CPU quota",
		},
		{
			Service: "quota",
			Action:  "add",
			Summary: "top up the session CPU quota",
			Fields: []Field{
				{Name: "seconds", Aliases: []string{"s"}, Prompt: "CPU seconds to add", Type: FieldFloat, Required: true},
			},
		},
		{
			Service: "job",
			Action:  "run",
			Summary: "run a program under supervision",
			Fields: []Field{
				{Name: "path", Aliases: []string{"binary", "bin"}, Prompt: "Path of the executable", Type: FieldString, Required: true},
				{Name: "args", Prompt: "Arguments", Type: FieldArgs},
				{Name: "cpu", Aliases: []string{"cpu_seconds"}, Prompt: "CPU quota in seconds", Type: FieldFloat},
				{Name: "memory", Aliases: []string{"memory_mb", "mem"}, Prompt: "Memory limit in MB", Type: FieldFloat},
				{Name: "timeout", Aliases: []string{"timeout_seconds"}, Prompt: "Timeout in seconds (0 for none)", Type: FieldFloat},
				{Name: "label", Prompt: "Label", Type: FieldString},
			},
		},
		{
			Service: "job",
			Action:  "kill",
			Summary: "abort a running job",
			Fields: []Field{
				{Name: "id", Aliases: []string{"job_id"}, Prompt: "Job id", Type: FieldString, Required: true},
			},
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		registry[cmd.Key()] = cmd
	}
	return registry
}
