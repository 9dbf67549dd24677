package languages

import "github.com/terra-clan/screening-engine/internal/models"

// Judge0 CE language ids
func defaults() []models.Language {
	return []models.Language{
		{
			Value:       "javascript",
			Label:       "JavaScript (Node.js)",
			DefaultCode: `console.log("Hello, World!");`,
			JudgeID:     63,
			Image:       "node:20-alpine",
			Command:     "node main.js",
		},
		{
			Value:       "python",
			Label:       "Python 3",
			DefaultCode: `print("Hello, World!")`,
			JudgeID:     71,
			Image:       "python:3.12-alpine",
			Command:     "python3 main.py",
		},
		{
			Value:       "java",
			Label:       "Java",
			DefaultCode: "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello, World!\");\n    }\n}",
			JudgeID:     62,
			Image:       "eclipse-temurin:21-jdk-alpine",
			Command:     "javac Main.java && java Main",
		},
		{
			Value:       "cpp",
			Label:       "C++",
			DefaultCode: "#include <iostream>\nusing namespace std;\n\nint main() {\n    cout << \"Hello, World!\" << endl;\n    return 0;\n}",
			JudgeID:     54,
			Image:       "gcc:13",
			Command:     "g++ -O2 -o main main.cpp && ./main",
		},
		{
			Value:       "c",
			Label:       "C",
			DefaultCode: "#include <stdio.h>\n\nint main() {\n    printf(\"Hello, World!\\n\");\n    return 0;\n}",
			JudgeID:     50,
			Image:       "gcc:13",
			Command:     "gcc -O2 -o main main.c && ./main",
		},
		{
			Value:       "csharp",
			Label:       "C#",
			DefaultCode: "using System;\n\nclass Program {\n    static void Main() {\n        Console.WriteLine(\"Hello, World!\");\n    }\n}",
			JudgeID:     51,
			Image:       "mono:6",
			Command:     "mcs -out:main.exe main.cs && mono main.exe",
		},
		{
			Value:       "php",
			Label:       "PHP",
			DefaultCode: "<?php\necho \"Hello, World!\\n\";\n?>",
			JudgeID:     68,
			Image:       "php:8.3-cli-alpine",
			Command:     "php main.php",
		},
		{
			Value:       "ruby",
			Label:       "Ruby",
			DefaultCode: `puts "Hello, World!"`,
			JudgeID:     72,
			Image:       "ruby:3.3-alpine",
			Command:     "ruby main.rb",
		},
		{
			Value:       "go",
			Label:       "Go",
			DefaultCode: "package main\n\nimport \"fmt\"\n\nfunc main() {\n    fmt.Println(\"Hello, World!\")\n}",
			JudgeID:     60,
			Image:       "golang:1.23-alpine",
			Command:     "go run main.go",
		},
		{
			Value:       "html",
			Label:       "HTML",
			DefaultCode: "<!-- HTML cannot be executed -->\n<h1>Hello, World!</h1>",
		},
		{
			Value:       "css",
			Label:       "CSS",
			DefaultCode: "/* CSS cannot be executed */\nbody { color: blue; }",
		},
		{
			Value:       "sql",
			Label:       "SQL",
			DefaultCode: "-- SQL execution requires database setup\nSELECT \"Hello, World!\" as message;",
			JudgeID:     82,
			Image:       "keinos/sqlite3:latest",
			Command:     "sqlite3 :memory: < main.sql",
		},
	}
}

// SourceFile names the file a language's command expects
func SourceFile(lang *models.Language) string {
	switch lang.Value {
	case "javascript":
		return "main.js"
	case "python":
		return "main.py"
	case "java":
		return "Main.java"
	case "cpp":
		return "main.cpp"
	case "c":
		return "main.c"
	case "csharp":
		return "main.cs"
	case "php":
		return "main.php"
	case "ruby":
		return "main.rb"
	case "go":
		return "main.go"
	case "sql":
		return "main.sql"
	}
	return "main.txt"
}
