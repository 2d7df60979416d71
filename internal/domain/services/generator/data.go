package generator

var firstNames = []string{
	"Aarav", "Vivaan", "Aditya", "Vihaan", "Arjun", "Sai", "Reyansh", "Ayaan", "Krishna", "Ishaan",
	"Rohan", "Karan", "Rahul", "Amit", "Suresh", "Rajesh", "Vikram", "Anil", "Sanjay", "Manoj",
	"Ananya", "Diya", "Saanvi", "Aadhya", "Pari", "Kavya", "Ishita", "Priya", "Neha", "Pooja",
	"Sneha", "Divya", "Lakshmi", "Meera", "Anjali", "Sunita", "Deepa", "Kiran", "Swati", "Nisha",
}

var lastNames = []string{
	"Sharma", "Verma", "Gupta", "Patel", "Shah", "Mehta", "Iyer", "Nair", "Reddy", "Rao",
	"Kumar", "Singh", "Joshi", "Desai", "Kulkarni", "Chatterjee", "Banerjee", "Mukherjee", "Das", "Bose",
	"Menon", "Pillai", "Agarwal", "Jain", "Malhotra", "Kapoor", "Chopra", "Bhat", "Naidu", "Saxena",
}

var streets = []string{
	"MG Road", "Station Road", "Gandhi Nagar", "Nehru Street", "Park Street", "Linking Road",
	"Residency Road", "Brigade Road", "Anna Salai", "FC Road", "Civil Lines", "Sector 15",
}

var emailDomains = []string{"gmail.com", "yahoo.co.in", "outlook.com", "rediffmail.com", "hotmail.com"}

type location struct {
	city      string
	state     string
	pinPrefix string
}

var locations = []location{
	{"Mumbai", "Maharashtra", "400"},
	{"Pune", "Maharashtra", "411"},
	{"Delhi", "Delhi", "110"},
	{"Bengaluru", "Karnataka", "560"},
	{"Chennai", "Tamil Nadu", "600"},
	{"Hyderabad", "Telangana", "500"},
	{"Kolkata", "West Bengal", "700"},
	{"Ahmedabad", "Gujarat", "380"},
	{"Jaipur", "Rajasthan", "302"},
	{"Lucknow", "Uttar Pradesh", "226"},
	{"Kochi", "Kerala", "682"},
	{"Chandigarh", "Chandigarh", "160"},
}
