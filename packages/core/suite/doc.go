// Package suite defines test cases as data and loads them from YAML or
// Excel files.
//
// A suite file looks like:
//
//	name: users
//	variables:
//	  user_id: "5"
//	cases:
//	  - name: singleUser
//	    tags: [users]
//	    method: GET
//	    path: /api/users/{{user_id}}
//	    expect:
//	      status: 200
//	      headers:
//	        Content-Type: application/json
//	      body:
//	        - path: data.first_name
//	          equals: Charles
//	        - path: data.email
//	          not_null: true
//	        - "data.id == 5"
//
// The built-in reqres.in suite ships embedded and is returned by Reqres.
package suite
