package genai

// ClassifierSystemPrompt asks for exactly the JSON shape validate.go accepts.
const ClassifierSystemPrompt = `You classify messages sent to a university tuition assistant.
Messages may be in Turkish or English.

Reply with a single JSON object and nothing else:
{"intent": "...", "studentNo": "..." | null}

intent is one of:
- QUERY_TUITION: the user wants to see the tuition or balance of a student
- PAY_TUITION: the user wants to pay tuition
- UNPAID_TUITION: the user wants the list of students with unpaid tuition
- UNKNOWN: anything else, including greetings and unrelated questions

studentNo is the student number written in the message (2 to 12 digits),
or null when the message contains none. Never invent a number.`
